// Package framestore keeps captured frames as timestamp-named JPEG files in
// one directory.
package framestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rtsp-timelapse/pkg/models"
	"rtsp-timelapse/pkg/util"
)

const (
	// NameLayout is the time layout of a frame filename, without extension.
	NameLayout = "2006-01-02_15-04-05"
	frameExt   = ".jpg"
)

// Store is a directory of frames. Names sort lexically in capture order.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a frame captured at t. Two frames in the same second get a
// numeric suffix rather than overwriting each other.
func (s *Store) Save(t time.Time, data []byte) (models.Frame, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return models.Frame{}, fmt.Errorf("failed to create frame directory: %w", err)
	}

	base := t.Format(NameLayout)
	path := filepath.Join(s.dir, base+frameExt)
	for n := 1; util.FileExists(path); n++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%d%s", base, n, frameExt))
	}

	if err := util.WriteFileAtomic(path, data, 0644); err != nil {
		return models.Frame{}, fmt.Errorf("failed to save frame: %w", err)
	}
	return models.Frame{Path: path, CapturedAt: t.Truncate(time.Second)}, nil
}

// List returns every frame in ascending name order. Files whose names do not
// carry a timestamp are still listed, dated by their modification time.
func (s *Store) List() ([]models.Frame, error) {
	paths, err := util.ListFiles(s.dir, frameExt)
	if err != nil {
		return nil, err
	}

	frames := make([]models.Frame, 0, len(paths))
	for _, p := range paths {
		at, ok := parseName(filepath.Base(p))
		if !ok {
			info, err := os.Stat(p)
			if err != nil {
				// Removed between listing and stat.
				continue
			}
			at = info.ModTime()
		}
		frames = append(frames, models.Frame{Path: p, CapturedAt: at})
	}
	return frames, nil
}

// Latest returns the newest frame, if any.
func (s *Store) Latest() (models.Frame, bool) {
	frames, err := s.List()
	if err != nil || len(frames) == 0 {
		return models.Frame{}, false
	}
	return frames[len(frames)-1], true
}

// Delete removes exactly the given frames and reports how many were removed.
// A frame that is already gone is not an error.
func (s *Store) Delete(frames []models.Frame) (int, error) {
	var errs []error
	deleted := 0
	for _, f := range frames {
		err := os.Remove(f.Path)
		switch {
		case err == nil:
			deleted++
		case os.IsNotExist(err):
		default:
			errs = append(errs, fmt.Errorf("failed to delete frame %s: %w", f.Path, err))
		}
	}
	return deleted, errors.Join(errs...)
}

func parseName(name string) (time.Time, bool) {
	stem := strings.TrimSuffix(name, frameExt)
	if len(stem) > len(NameLayout) && stem[len(NameLayout)] == '_' {
		stem = stem[:len(NameLayout)]
	}
	t, err := time.ParseInLocation(NameLayout, stem, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
