// Package snapshot captures single frames from the RTSP stream into the frame
// store.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"rtsp-timelapse/pkg/config"
	"rtsp-timelapse/pkg/models"
)

// Grabber pulls one still image out of a stream.
type Grabber interface {
	Capture(ctx context.Context, streamURL *url.URL, timeout time.Duration) ([]byte, error)
}

// FrameSaver persists captured bytes as a frame.
type FrameSaver interface {
	Save(t time.Time, data []byte) (models.Frame, error)
}

// CaptureResult is what one capture attempt did.
type CaptureResult struct {
	Skipped bool
	Frame   models.Frame
	Err     error
}

// Service runs capture attempts against the configured stream.
type Service struct {
	cfg     *config.Config
	grabber Grabber
	store   FrameSaver
	logger  *slog.Logger
}

func NewService(cfg *config.Config, grabber Grabber, store FrameSaver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, grabber: grabber, store: store, logger: logger}
}

// TakeSnapshot captures one frame unless now falls inside the quiet window.
// Failures are logged and returned in the result, never escalated.
func (s *Service) TakeSnapshot(ctx context.Context, now time.Time) CaptureResult {
	if s.cfg.QuietWindow.Contains(now) {
		s.logger.Debug("skipping capture inside quiet window", "window", s.cfg.QuietWindow.String(), "time", now.Format("15:04:05"))
		return CaptureResult{Skipped: true}
	}

	data, err := s.grabber.Capture(ctx, s.cfg.RTSPURL, s.cfg.CaptureTimeout)
	if err != nil {
		s.logger.Error("snapshot capture failed", "error", err)
		return CaptureResult{Err: err}
	}

	frame, err := s.store.Save(now, data)
	if err != nil {
		s.logger.Error("failed to store snapshot", "error", err)
		return CaptureResult{Err: err}
	}
	s.logger.Info("snapshot saved", "path", frame.Path, "bytes", len(data))
	return CaptureResult{Frame: frame}
}

// FFmpegGrabber captures a frame by running ffmpeg against the stream and
// reading a single MJPEG image from its stdout.
type FFmpegGrabber struct {
	FFmpegPath string
}

func (g *FFmpegGrabber) Capture(ctx context.Context, streamURL *url.URL, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", streamURL.String(),
		"-frames:v", "1",
		"-q:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffmpeg capture from %s timed out after %s", streamURL.Redacted(), timeout)
		}
		return nil, fmt.Errorf("ffmpeg capture from %s failed: %w: %s", streamURL.Redacted(), err, lastLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg capture from %s produced no image", streamURL.Redacted())
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
