package video

import (
	"fmt"

	"github.com/xfrr/goffmpeg/transcoder"
)

// ProbeResult describes the video stream of an encoded artifact.
type ProbeResult struct {
	Codec    string
	Width    int
	Height   int
	Duration string
}

// Prober inspects a finished artifact.
type Prober interface {
	Probe(path string) (ProbeResult, error)
}

// MediaProber reads stream metadata through goffmpeg, which shells out to
// ffprobe.
type MediaProber struct{}

func (MediaProber) Probe(path string) (ProbeResult, error) {
	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(path, ""); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	metadata := trans.MediaFile().Metadata()
	for _, stream := range metadata.Streams {
		if stream.CodecType != "video" {
			continue
		}
		if stream.Width == 0 || stream.Height == 0 {
			return ProbeResult{}, fmt.Errorf("video stream in %s has no dimensions", path)
		}
		return ProbeResult{
			Codec:    stream.CodecName,
			Width:    stream.Width,
			Height:   stream.Height,
			Duration: metadata.Format.Duration,
		}, nil
	}
	return ProbeResult{}, fmt.Errorf("no video stream in %s", path)
}
