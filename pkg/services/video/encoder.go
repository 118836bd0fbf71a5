package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"rtsp-timelapse/pkg/config"
)

// Encoder turns an ordered list of frames into a video at the given rate.
type Encoder interface {
	Encode(ctx context.Context, frames []string, fps int, output string) error
}

// Codecs tried by detection, most preferred first. mpeg4 ships with every
// ffmpeg build and is the fallback.
var codecPreference = []string{"libx264", "libopenh264"}

const fallbackCodec = "mpeg4"

// FFmpegEncoder encodes with the ffmpeg concat demuxer. Output is written to a
// temporary file and renamed into place only when ffmpeg succeeds.
type FFmpegEncoder struct {
	ffmpegPath string
	codec      string
	crf        int
	logPath    func(time.Time) string
	logger     *slog.Logger

	detectOnce sync.Once
	threads    int
}

func NewFFmpegEncoder(cfg *config.Config, logger *slog.Logger) *FFmpegEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegEncoder{
		ffmpegPath: cfg.FFmpegPath,
		codec:      cfg.VideoCodec,
		crf:        cfg.TimelapseCRF,
		logPath:    cfg.GetFFmpegLogPath,
		logger:     logger,
	}
}

// detectFFmpegCapabilities resolves the codec and thread count once.
func (e *FFmpegEncoder) detectFFmpegCapabilities(ctx context.Context) {
	e.detectOnce.Do(func() {
		// Cap threads to 8 to avoid excessive resource usage for FFmpeg
		e.threads = min(max(runtime.NumCPU(), 1), 8)

		if e.codec != "" && e.codec != "auto" {
			e.logger.Info("using configured video codec", "codec", e.codec, "threads", e.threads)
			return
		}

		output, err := exec.CommandContext(ctx, e.ffmpegPath, "-hide_banner", "-encoders").Output()
		if err != nil {
			e.codec = fallbackCodec
			e.logger.Warn("could not list ffmpeg encoders, falling back", "codec", e.codec, "error", err)
			return
		}

		e.codec = fallbackCodec
		for _, name := range codecPreference {
			if hasEncoder(string(output), name) {
				e.codec = name
				break
			}
		}
		e.logger.Info("detected ffmpeg capabilities", "codec", e.codec, "threads", e.threads)
	})
}

func hasEncoder(listing, name string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

// Codec returns the codec in use, detecting it if needed.
func (e *FFmpegEncoder) Codec(ctx context.Context) string {
	e.detectFFmpegCapabilities(ctx)
	return e.codec
}

func (e *FFmpegEncoder) Encode(ctx context.Context, frames []string, fps int, output string) error {
	if len(frames) == 0 {
		return errors.New("no frames to encode")
	}
	if fps <= 0 {
		return fmt.Errorf("invalid frame rate %d", fps)
	}
	e.detectFFmpegCapabilities(ctx)

	listPath := output + ".list.txt"
	if err := writeConcatList(listPath, frames, fps); err != nil {
		return err
	}
	defer os.Remove(listPath)

	tempOutput := output + ".part"
	defer os.Remove(tempOutput)

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-hide_banner",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-r", strconv.Itoa(fps),
		"-c:v", e.codec,
		"-threads", strconv.Itoa(e.threads),
		"-crf", strconv.Itoa(e.crf),
		"-pix_fmt", "yuv420p",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-movflags", "+faststart",
		"-an",
		"-f", "mp4",
		"-y", tempOutput,
	)
	cmd.WaitDelay = 5 * time.Second

	logFile, err := os.OpenFile(e.logPath(time.Now()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open FFmpeg log file: %w", err)
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "\n=== %s encode %d frames at %d fps -> %s ===\n",
		time.Now().Format(time.RFC3339), len(frames), fps, filepath.Base(output))
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	e.logger.Info("running ffmpeg", "fps", fps, "frames", len(frames), "codec", e.codec, "output", filepath.Base(output))
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg timed out: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	info, err := os.Stat(tempOutput)
	if err != nil || info.Size() == 0 {
		return errors.New("ffmpeg produced no output")
	}
	if err := os.Rename(tempOutput, output); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(output), err)
	}
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer script showing each frame
// for 1/fps seconds. The last frame is repeated so its duration is honoured.
func writeConcatList(path string, frames []string, fps int) error {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	duration := 1 / float64(fps)
	for _, frame := range frames {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(frame))
		fmt.Fprintf(&b, "duration %.6f\n", duration)
	}
	fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(frames[len(frames)-1]))

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to create image list: %w", err)
	}
	return nil
}

func escapeConcatPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.ReplaceAll(filepath.ToSlash(path), "'", `'\''`)
}
