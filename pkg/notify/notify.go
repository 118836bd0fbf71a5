// Package notify delivers finished timelapses to notification targets. A
// target is described by an apprise-style URI whose scheme selects the Sink.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"rtsp-timelapse/pkg/models"
)

// Message is one notification. Attachment is a path on disk, may be empty.
type Message struct {
	Title      string
	Body       string
	Attachment string
}

// Sink sends a Message to one notification target.
type Sink interface {
	Send(ctx context.Context, msg Message) error
	// Name identifies the target in logs with credentials masked.
	Name() string
}

// Parse builds the Sink for a target URI.
func Parse(raw string) (Sink, error) {
	scheme, _, found := strings.Cut(raw, "://")
	if !found {
		return nil, fmt.Errorf("notification target %q has no scheme", redactRaw(raw))
	}

	// Telegram bot tokens contain a colon, which net/url reads as a port.
	if strings.ToLower(scheme) == "tgram" {
		s, err := parseTelegram(raw)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("notification target %q: %w", redactRaw(raw), err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("notification target %s: missing host", redact(u))
	}

	switch strings.ToLower(u.Scheme) {
	case "json", "jsons":
		return newJSONSink(u), nil
	case "form", "forms":
		return newFormSink(u), nil
	case "ntfy", "ntfys":
		s, err := newNtfySink(u)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mailto", "mailtos":
		s, err := newEmailSink(u)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported notification scheme %q in %s", u.Scheme, redact(u))
	}
}

// Dispatcher fans artifacts out to every configured sink.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. An empty sink list makes Notify a no-op.
func NewDispatcher(sinks []Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Notify sends every artifact to every sink and returns the number of failed
// deliveries. A failure for one target never stops delivery to the others.
func (d *Dispatcher) Notify(ctx context.Context, artifacts []models.Artifact) int {
	if len(d.sinks) == 0 || len(artifacts) == 0 {
		return 0
	}

	ordered := append([]models.Artifact(nil), artifacts...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].FPS < ordered[j].FPS })

	failures := 0
	for _, artifact := range ordered {
		msg := Message{
			Title:      fmt.Sprintf("Daily RTSP Timelapse (%d FPS)", artifact.FPS),
			Body:       fmt.Sprintf("Generated %s", artifact.GeneratedAt.Format("2006-01-02 15:04")),
			Attachment: artifact.Path,
		}
		for _, sink := range d.sinks {
			if err := sink.Send(ctx, msg); err != nil {
				failures++
				d.logger.Error("notification failed", "target", sink.Name(), "file", filepath.Base(artifact.Path), "error", err)
				continue
			}
			d.logger.Info("notification sent", "target", sink.Name(), "file", filepath.Base(artifact.Path))
		}
	}
	return failures
}

func redact(u *url.URL) string {
	c := *u
	c.User = nil
	c.RawQuery = ""
	s := c.String()
	if u.User == nil {
		return s
	}

	user := u.User.Username()
	if _, hasPassword := u.User.Password(); hasPassword {
		user += ":***"
	}
	scheme, rest, _ := strings.Cut(s, "://")
	return scheme + "://" + user + "@" + rest
}

func redactRaw(raw string) string {
	scheme, _, found := strings.Cut(raw, "://")
	if !found {
		return "***"
	}
	return scheme + "://***"
}
