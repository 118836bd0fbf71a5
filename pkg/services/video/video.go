// Package video compiles the accumulated frames into timelapse videos.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/disk"

	"rtsp-timelapse/pkg/config"
	"rtsp-timelapse/pkg/framestore"
	"rtsp-timelapse/pkg/models"
)

// FrameStore is the part of the frame store a generation cycle needs.
type FrameStore interface {
	List() ([]models.Frame, error)
	Delete(frames []models.Frame) (int, error)
}

// EncodeError reports a failed frame-rate target.
type EncodeError struct {
	FPS int
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%d fps timelapse failed: %v", e.FPS, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Generator runs generation cycles.
type Generator struct {
	cfg     *config.Config
	store   FrameStore
	encoder Encoder
	prober  Prober
	logger  *slog.Logger

	// diskUsage is swapped in tests.
	diskUsage func(path string) (*disk.UsageStat, error)
}

func NewGenerator(cfg *config.Config, store FrameStore, encoder Encoder, prober Prober, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		cfg:       cfg,
		store:     store,
		encoder:   encoder,
		prober:    prober,
		logger:    logger,
		diskUsage: disk.Usage,
	}
}

// ArtifactPath is where the video for one target of a cycle started at
// startedAt is written.
func ArtifactPath(dir string, startedAt time.Time, fps int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_fps_%d.mp4", startedAt.Format(framestore.NameLayout), fps))
}

// Run executes one generation cycle. Frames are deleted only when every
// target produced a verified artifact, and then only the frames that were
// listed when the cycle started.
func (g *Generator) Run(ctx context.Context, now time.Time) *models.GenerationOutcome {
	outcome := &models.GenerationOutcome{
		CycleID:   uuid.NewString(),
		StartedAt: now,
	}
	logger := g.logger.With("cycle", outcome.CycleID)
	logger.Info("generating timelapses")

	frames, err := g.store.List()
	if err != nil {
		logger.Error("failed to list frames, skipping generation", "error", err)
		outcome.Skipped = true
		return outcome
	}
	if len(frames) == 0 {
		logger.Info("no frames available, skipping generation")
		outcome.Skipped = true
		return outcome
	}
	outcome.FrameCount = len(frames)

	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.Path
	}

	if err := os.MkdirAll(g.cfg.TimelapsesDir, 0755); err != nil {
		logger.Error("failed to create timelapse directory", "error", err)
	}
	g.logDiskHeadroom(logger)

	probes := make(map[int]ProbeResult)
	for _, fps := range models.TimelapseFrameRates {
		result := models.TargetResult{FPS: fps}
		output := ArtifactPath(g.cfg.TimelapsesDir, now, fps)

		probe, err := g.encodeTarget(ctx, paths, fps, output)
		if err != nil {
			result.Err = &EncodeError{FPS: fps, Err: err}
			logger.Error("timelapse generation failed", "fps", fps, "error", err)
		} else {
			result.Artifact = &models.Artifact{Path: output, FPS: fps, GeneratedAt: now}
			probes[fps] = probe
			logger.Info("timelapse generated", "fps", fps, "path", output, "codec", probe.Codec, "duration", probe.Duration)
		}
		outcome.Targets = append(outcome.Targets, result)
	}

	if outcome.AllSucceeded() {
		deleted, err := g.store.Delete(frames)
		outcome.FramesDeleted = deleted
		if err != nil {
			logger.Error("failed to delete some frames", "error", err)
		}
		logger.Info("cleaned up frames", "deleted", deleted)
	} else {
		logger.Warn("retaining frames after failed generation", "frames", len(frames))
	}

	manifestPath := filepath.Join(g.cfg.TimelapsesDir, now.Format(framestore.NameLayout)+".yaml")
	if err := writeManifest(manifestPath, buildManifest(outcome, frames, probes)); err != nil {
		logger.Warn("failed to write manifest", "error", err)
	}

	if removed, err := CleanupFFmpegLogs(g.cfg.DataDir, g.cfg.FFmpegLogRetentionDays, now); err != nil {
		logger.Warn("failed to clean up ffmpeg logs", "error", err)
	} else if removed > 0 {
		logger.Info("removed old ffmpeg logs", "count", removed)
	}
	return outcome
}

func (g *Generator) encodeTarget(ctx context.Context, frames []string, fps int, output string) (ProbeResult, error) {
	encodeCtx, cancel := context.WithTimeout(ctx, g.cfg.EncodeTimeout)
	defer cancel()

	if err := g.encoder.Encode(encodeCtx, frames, fps, output); err != nil {
		return ProbeResult{}, err
	}

	probe, err := g.prober.Probe(output)
	if err != nil {
		// An unplayable file is not an artifact.
		os.Remove(output)
		return ProbeResult{}, fmt.Errorf("artifact verification failed: %w", err)
	}
	return probe, nil
}

func (g *Generator) logDiskHeadroom(logger *slog.Logger) {
	usage, err := g.diskUsage(g.cfg.DataDir)
	if err != nil {
		logger.Warn("could not read disk usage", "path", g.cfg.DataDir, "error", err)
		return
	}
	logger.Info("disk headroom before encoding",
		"free_mb", usage.Free/1024/1024,
		"used_percent", fmt.Sprintf("%.1f", usage.UsedPercent))
}

// CleanupFFmpegLogs removes daily ffmpeg logs older than retentionDays.
// A retention of zero keeps every log.
func CleanupFFmpegLogs(dataDir string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(dataDir, "ffmpeg_log_*.txt"))
	if err != nil {
		return 0, err
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	cutoff := today.AddDate(0, 0, -retentionDays)

	var errs []error
	removed := 0
	for _, path := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "ffmpeg_log_"), ".txt")
		day, err := time.ParseInLocation("2006-01-02", stamp, now.Location())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
