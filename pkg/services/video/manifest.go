package video

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"rtsp-timelapse/pkg/models"
	"rtsp-timelapse/pkg/util"
)

// Manifest is the human-readable report written next to a cycle's videos.
type Manifest struct {
	CycleID       string           `yaml:"cycle_id"`
	GeneratedAt   time.Time        `yaml:"generated_at"`
	FrameCount    int              `yaml:"frame_count"`
	FirstFrame    string           `yaml:"first_frame,omitempty"`
	LastFrame     string           `yaml:"last_frame,omitempty"`
	FramesDeleted int              `yaml:"frames_deleted"`
	Targets       []ManifestTarget `yaml:"targets"`
}

type ManifestTarget struct {
	FPS      int    `yaml:"fps"`
	Artifact string `yaml:"artifact,omitempty"`
	Codec    string `yaml:"codec,omitempty"`
	Width    int    `yaml:"width,omitempty"`
	Height   int    `yaml:"height,omitempty"`
	Duration string `yaml:"duration,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

func buildManifest(outcome *models.GenerationOutcome, frames []models.Frame, probes map[int]ProbeResult) Manifest {
	m := Manifest{
		CycleID:       outcome.CycleID,
		GeneratedAt:   outcome.StartedAt,
		FrameCount:    outcome.FrameCount,
		FramesDeleted: outcome.FramesDeleted,
	}
	if len(frames) > 0 {
		m.FirstFrame = filepath.Base(frames[0].Path)
		m.LastFrame = filepath.Base(frames[len(frames)-1].Path)
	}
	for _, t := range outcome.Targets {
		mt := ManifestTarget{FPS: t.FPS}
		if t.Artifact != nil {
			mt.Artifact = filepath.Base(t.Artifact.Path)
			if p, ok := probes[t.FPS]; ok {
				mt.Codec = p.Codec
				mt.Width = p.Width
				mt.Height = p.Height
				mt.Duration = p.Duration
			}
		}
		if t.Err != nil {
			mt.Error = t.Err.Error()
		}
		m.Targets = append(m.Targets, mt)
	}
	return m
}

func writeManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return util.WriteFileAtomic(path, data, 0644)
}

// ReadManifest loads a manifest written by a previous cycle.
func ReadManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m, nil
}
