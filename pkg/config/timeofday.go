package config

import (
	"errors"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("malformed time %q, expected HH:MM", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns the instant at this time of day on the calendar day of ref, in
// ref's location.
func (t TimeOfDay) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

// NextAfter returns the first occurrence of this time of day strictly after ref.
func (t TimeOfDay) NextAfter(ref time.Time) time.Time {
	next := t.On(ref)
	if !next.After(ref) {
		next = t.On(ref.AddDate(0, 0, 1))
	}
	return next
}

// QuietWindow is a daily range during which captures are suppressed. It
// covers [Start, End); when End is before Start it wraps past midnight.
type QuietWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewQuietWindow validates the bounds.
func NewQuietWindow(start, end TimeOfDay) (*QuietWindow, error) {
	if start == end {
		return nil, errors.New("quiet window start and end must differ")
	}
	return &QuietWindow{Start: start, End: end}, nil
}

// Contains reports whether the time of day of t is inside the window.
// A nil window contains nothing.
func (w *QuietWindow) Contains(t time.Time) bool {
	if w == nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	start, end := w.Start.minutes(), w.End.minutes()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func (w *QuietWindow) String() string {
	if w == nil {
		return "none"
	}
	return w.Start.String() + "-" + w.End.String()
}
