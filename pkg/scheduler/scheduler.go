// Package scheduler drives capture and generation from a single loop, so no
// two tasks ever run at the same time.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"rtsp-timelapse/pkg/config"
	"rtsp-timelapse/pkg/models"
	"rtsp-timelapse/pkg/services/snapshot"
)

type Capturer interface {
	TakeSnapshot(ctx context.Context, now time.Time) snapshot.CaptureResult
}

type Generator interface {
	Run(ctx context.Context, now time.Time) *models.GenerationOutcome
}

type Notifier interface {
	Notify(ctx context.Context, artifacts []models.Artifact) int
}

// schedule is owned by the loop goroutine.
type schedule struct {
	nextCapture    time.Time
	nextGeneration time.Time
	// lastGenerationDay is the calendar day of the last scheduled generation.
	lastGenerationDay string
}

type Scheduler struct {
	cfg       *config.Config
	capturer  Capturer
	generator Generator
	notifier  Notifier
	status    *models.RunStatus
	logger    *slog.Logger

	now          func() time.Time
	tickInterval time.Duration
	trigger      chan struct{}
	sched        schedule
}

func New(cfg *config.Config, capturer Capturer, generator Generator, notifier Notifier, status *models.RunStatus, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = &models.RunStatus{}
	}
	return &Scheduler{
		cfg:          cfg,
		capturer:     capturer,
		generator:    generator,
		notifier:     notifier,
		status:       status,
		logger:       logger,
		now:          time.Now,
		tickInterval: time.Second,
		trigger:      make(chan struct{}, 1),
	}
}

// Status returns the status the loop publishes to.
func (s *Scheduler) Status() *models.RunStatus {
	return s.status
}

// TriggerGeneration asks the loop to run an extra generation cycle between
// ticks. It reports false if a request is already pending.
func (s *Scheduler) TriggerGeneration() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run captures immediately, then loops until ctx is cancelled. A task that
// has started always runs to completion before the loop checks ctx again.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.now()
	s.start(start)
	s.logger.Info("scheduler started",
		"interval", s.cfg.ScreenshotInterval,
		"generation_time", s.cfg.GenerationTime.String(),
		"quiet_window", s.cfg.QuietWindow.String(),
		"next_generation", s.sched.nextGeneration.Format(time.DateTime))

	s.tick(ctx, start)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.trigger:
			s.logger.Info("manual generation requested")
			s.generate(ctx, s.now())
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

// start sets the first deadlines: capture now, generation at the next
// occurrence of the configured time. A generation time that already passed
// today is not run retroactively.
func (s *Scheduler) start(now time.Time) {
	s.sched = schedule{
		nextCapture:    now,
		nextGeneration: s.cfg.GenerationTime.NextAfter(now),
	}
	s.publishSchedule()
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if !now.Before(s.sched.nextCapture) {
		s.capture(ctx, now)
		s.sched.nextCapture = advance(s.sched.nextCapture, s.cfg.ScreenshotInterval, now)
	}

	if ctx.Err() == nil && !now.Before(s.sched.nextGeneration) {
		day := s.sched.nextGeneration.Format(time.DateOnly)
		if day != s.sched.lastGenerationDay {
			s.sched.lastGenerationDay = day
			s.generate(ctx, now)
		}
		s.sched.nextGeneration = s.cfg.GenerationTime.NextAfter(now)
	}

	s.publishSchedule()
}

// advance moves next forward by whole intervals until it is after now, so a
// stalled loop skips missed captures instead of bursting.
func advance(next time.Time, interval time.Duration, now time.Time) time.Time {
	if interval <= 0 {
		return now
	}
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}

func (s *Scheduler) capture(ctx context.Context, now time.Time) {
	result := s.capturer.TakeSnapshot(ctx, now)

	s.status.Lock()
	defer s.status.Unlock()
	switch {
	case result.Skipped:
		s.status.CapturesSkipped++
	case result.Err != nil:
		s.status.LastCaptureError = result.Err.Error()
	default:
		at := now
		s.status.LastCaptureAt = &at
		s.status.LastCaptureError = ""
		s.status.LastFrame = result.Frame.Path
	}
}

func (s *Scheduler) generate(ctx context.Context, now time.Time) {
	s.status.Lock()
	s.status.IsGenerating = true
	s.status.Unlock()

	outcome := s.generator.Run(ctx, now)

	s.status.Lock()
	s.status.IsGenerating = false
	s.status.LastOutcome = outcome
	s.status.Unlock()

	// Frame deletion was decided inside Run; delivery results cannot change it.
	artifacts := outcome.Artifacts()
	if len(artifacts) == 0 || s.notifier == nil {
		return
	}
	failures := s.notifier.Notify(ctx, artifacts)
	if failures > 0 {
		s.status.Lock()
		s.status.NotifyFailures += failures
		s.status.Unlock()
	}
}

func (s *Scheduler) publishSchedule() {
	s.status.Lock()
	s.status.NextCapture = s.sched.nextCapture
	s.status.NextGeneration = s.sched.nextGeneration
	s.status.Unlock()
}
