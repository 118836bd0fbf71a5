package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rtsp-timelapse/pkg/notify"
)

// Config holds the application configuration. It is built once by Load and
// never mutated afterwards.
type Config struct {
	RTSPURL                *url.URL
	ScreenshotInterval     time.Duration
	CaptureTimeout         time.Duration
	GenerationTime         TimeOfDay
	QuietWindow            *QuietWindow
	TimelapseCRF           int
	EncodeTimeout          time.Duration
	FFmpegPath             string
	VideoCodec             string
	LogLevel               slog.Level
	NotifyURLs             []string
	Sinks                  []notify.Sink
	DataDir                string
	FramesDir              string
	TimelapsesDir          string
	StatusAddr             string
	FFmpegLogRetentionDays int
}

const (
	framesSubdir     = "screenshots"
	timelapsesSubdir = "timelapses"
)

// GetFFmpegLogPath returns the path to the ffmpeg log file for the given day.
func (c *Config) GetFFmpegLogPath(day time.Time) string {
	logFileName := fmt.Sprintf("ffmpeg_log_%s.txt", day.Format("2006-01-02"))
	return filepath.Join(c.DataDir, logFileName)
}

// LoadConfig loads the configuration from the process environment.
func LoadConfig() (*Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from the given lookup function. Every invalid setting
// is reported, not just the first one.
func Load(lookup func(string) (string, bool)) (*Config, error) {
	l := loader{lookup: lookup}

	cfg := &Config{
		ScreenshotInterval:     time.Duration(l.positiveInt("INTERVAL_SCREENSHOT_MINUTES", 5)) * time.Minute,
		CaptureTimeout:         time.Duration(l.positiveInt("CAPTURE_TIMEOUT_SECONDS", 10)) * time.Second,
		TimelapseCRF:           l.intInRange("TIMELAPSE_CRF", 28, 0, 51),
		EncodeTimeout:          time.Duration(l.positiveInt("ENCODE_TIMEOUT_MINUTES", 60)) * time.Minute,
		FFmpegPath:             l.nonEmpty("FFMPEG_PATH", "ffmpeg"),
		VideoCodec:             l.nonEmpty("TIMELAPSE_CODEC", "auto"),
		DataDir:                l.nonEmpty("DATA_PATH", "./data"),
		FFmpegLogRetentionDays: l.intInRange("FFMPEG_LOG_RETENTION_DAYS", 7, 0, 3650),
	}

	cfg.RTSPURL = l.rtspURL("RTSP_URL")
	cfg.GenerationTime = l.timeOfDay("TIMELAPSE_GENERATION_TIME", TimeOfDay{})
	cfg.QuietWindow = l.quietWindow("SKIP_TIME_START", "SKIP_TIME_END")
	cfg.LogLevel = l.logLevel("LOGGING_LEVEL", slog.LevelInfo)
	cfg.StatusAddr = l.listenAddr("STATUS_ADDR")
	cfg.NotifyURLs, cfg.Sinks = l.sinks("APPRISE_SERVERS")

	cfg.FramesDir = filepath.Join(cfg.DataDir, framesSubdir)
	cfg.TimelapsesDir = filepath.Join(cfg.DataDir, timelapsesSubdir)

	if err := errors.Join(l.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type loader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (l *loader) fail(key string, format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf("%s: %s", key, fmt.Sprintf(format, args...)))
}

func (l *loader) get(key string) (string, bool) {
	value, exists := l.lookup(key)
	if !exists {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (l *loader) nonEmpty(key, defaultValue string) string {
	if value, ok := l.get(key); ok {
		return value
	}
	return defaultValue
}

func (l *loader) intInRange(key string, defaultValue, lo, hi int) int {
	valueStr, ok := l.get(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		l.fail(key, "%q is not an integer", valueStr)
		return defaultValue
	}
	if value < lo || value > hi {
		l.fail(key, "%d is out of range [%d, %d]", value, lo, hi)
		return defaultValue
	}
	return value
}

func (l *loader) positiveInt(key string, defaultValue int) int {
	valueStr, ok := l.get(key)
	if !ok {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		l.fail(key, "%q is not an integer", valueStr)
		return defaultValue
	}
	if value <= 0 {
		l.fail(key, "must be positive, got %d", value)
		return defaultValue
	}
	return value
}

func (l *loader) rtspURL(key string) *url.URL {
	raw, ok := l.get(key)
	if !ok {
		l.fail(key, "required")
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		l.fail(key, "unparseable URL: %v", err)
		return nil
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		l.fail(key, "scheme must be rtsp or rtsps, got %q", u.Scheme)
		return nil
	}
	if u.Hostname() == "" {
		l.fail(key, "missing host")
		return nil
	}
	return u
}

func (l *loader) timeOfDay(key string, defaultValue TimeOfDay) TimeOfDay {
	raw, ok := l.get(key)
	if !ok {
		return defaultValue
	}
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		l.fail(key, "%v", err)
		return defaultValue
	}
	return t
}

func (l *loader) quietWindow(startKey, endKey string) *QuietWindow {
	rawStart, hasStart := l.get(startKey)
	rawEnd, hasEnd := l.get(endKey)
	if !hasStart && !hasEnd {
		return nil
	}
	if hasStart != hasEnd {
		l.fail(startKey+"/"+endKey, "both start and end have to be set to skip captures")
		return nil
	}

	start, err := ParseTimeOfDay(rawStart)
	if err != nil {
		l.fail(startKey, "%v", err)
		return nil
	}
	end, err := ParseTimeOfDay(rawEnd)
	if err != nil {
		l.fail(endKey, "%v", err)
		return nil
	}
	w, err := NewQuietWindow(start, end)
	if err != nil {
		l.fail(startKey+"/"+endKey, "%v", err)
		return nil
	}
	return w
}

// Python logging level names are accepted so existing deployments keep working.
var logLevels = map[string]slog.Level{
	"DEBUG":    slog.LevelDebug,
	"INFO":     slog.LevelInfo,
	"WARN":     slog.LevelWarn,
	"WARNING":  slog.LevelWarn,
	"ERROR":    slog.LevelError,
	"CRITICAL": slog.LevelError,
}

func (l *loader) logLevel(key string, defaultValue slog.Level) slog.Level {
	raw, ok := l.get(key)
	if !ok {
		return defaultValue
	}
	level, known := logLevels[strings.ToUpper(raw)]
	if !known {
		l.fail(key, "unknown level %q", raw)
		return defaultValue
	}
	return level
}

func (l *loader) listenAddr(key string) string {
	raw, ok := l.get(key)
	if !ok {
		return ""
	}
	if _, port, err := net.SplitHostPort(raw); err != nil || port == "" {
		l.fail(key, "%q is not a host:port address", raw)
		return ""
	}
	return raw
}

func (l *loader) sinks(key string) ([]string, []notify.Sink) {
	raw, ok := l.get(key)
	if !ok {
		return nil, nil
	}
	urls := SplitList(raw)
	sinks := make([]notify.Sink, 0, len(urls))
	for _, u := range urls {
		sink, err := notify.Parse(u)
		if err != nil {
			l.fail(key, "%v", err)
			continue
		}
		sinks = append(sinks, sink)
	}
	return urls, sinks
}

// SplitList splits a comma and/or whitespace delimited list, dropping empty
// entries.
func SplitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}
