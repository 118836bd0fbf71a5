package models

import (
	"sync"
	"time"
)

// Frame is one captured still image sitting in the frame store.
type Frame struct {
	Path       string
	CapturedAt time.Time
}

// Artifact is an encoded timelapse video.
type Artifact struct {
	Path        string
	FPS         int
	GeneratedAt time.Time
}

// TargetResult is the result of encoding one frame-rate target.
type TargetResult struct {
	FPS      int
	Artifact *Artifact
	Err      error
}

// Succeeded reports whether the target produced an artifact.
func (r TargetResult) Succeeded() bool {
	return r.Err == nil && r.Artifact != nil
}

// GenerationOutcome is the in-memory result of one generation cycle.
// It is never persisted.
type GenerationOutcome struct {
	CycleID       string
	StartedAt     time.Time
	Skipped       bool
	FrameCount    int
	Targets       []TargetResult
	FramesDeleted int
}

// AllSucceeded is true only when every target produced an artifact.
func (o *GenerationOutcome) AllSucceeded() bool {
	if len(o.Targets) == 0 {
		return false
	}
	for _, t := range o.Targets {
		if !t.Succeeded() {
			return false
		}
	}
	return true
}

// Artifacts returns the artifacts of the successful targets in target order.
func (o *GenerationOutcome) Artifacts() []Artifact {
	var artifacts []Artifact
	for _, t := range o.Targets {
		if t.Succeeded() {
			artifacts = append(artifacts, *t.Artifact)
		}
	}
	return artifacts
}

// RunStatus is written by the scheduler loop and read by the status server.
type RunStatus struct {
	sync.RWMutex
	LastCaptureAt    *time.Time
	LastCaptureError string
	LastFrame        string
	CapturesSkipped  int
	IsGenerating     bool
	LastOutcome      *GenerationOutcome
	NotifyFailures   int
	NextCapture      time.Time
	NextGeneration   time.Time
}

// StatusSnapshot is a lock-free copy of RunStatus for rendering.
type StatusSnapshot struct {
	LastCaptureAt    *time.Time   `json:"last_capture_at"`
	LastCaptureError string       `json:"last_capture_error,omitempty"`
	LastFrame        string       `json:"last_frame,omitempty"`
	CapturesSkipped  int          `json:"captures_skipped"`
	IsGenerating     bool         `json:"is_generating"`
	LastGeneration   *OutcomeView `json:"last_generation"`
	NotifyFailures   int          `json:"notify_failures"`
	NextCapture      time.Time    `json:"next_capture"`
	NextGeneration   time.Time    `json:"next_generation"`
}

// OutcomeView is the JSON shape of a GenerationOutcome.
type OutcomeView struct {
	CycleID       string             `json:"cycle_id"`
	StartedAt     time.Time          `json:"started_at"`
	Skipped       bool               `json:"skipped"`
	FrameCount    int                `json:"frame_count"`
	FramesDeleted int                `json:"frames_deleted"`
	Targets       []TargetResultView `json:"targets"`
}

// TargetResultView is the JSON shape of a TargetResult.
type TargetResultView struct {
	FPS      int    `json:"fps"`
	Artifact string `json:"artifact,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Snapshot copies the status under the read lock.
func (s *RunStatus) Snapshot() StatusSnapshot {
	s.RLock()
	defer s.RUnlock()

	snap := StatusSnapshot{
		LastCaptureAt:    s.LastCaptureAt,
		LastCaptureError: s.LastCaptureError,
		LastFrame:        s.LastFrame,
		CapturesSkipped:  s.CapturesSkipped,
		IsGenerating:     s.IsGenerating,
		NotifyFailures:   s.NotifyFailures,
		NextCapture:      s.NextCapture,
		NextGeneration:   s.NextGeneration,
	}
	if o := s.LastOutcome; o != nil {
		view := &OutcomeView{
			CycleID:       o.CycleID,
			StartedAt:     o.StartedAt,
			Skipped:       o.Skipped,
			FrameCount:    o.FrameCount,
			FramesDeleted: o.FramesDeleted,
		}
		for _, t := range o.Targets {
			tv := TargetResultView{FPS: t.FPS}
			if t.Artifact != nil {
				tv.Artifact = t.Artifact.Path
			}
			if t.Err != nil {
				tv.Error = t.Err.Error()
			}
			view.Targets = append(view.Targets, tv)
		}
		snap.LastGeneration = view
	}
	return snap
}

// TimelapseFrameRates are the targets every generation cycle encodes.
var TimelapseFrameRates = []int{24, 60}
