package core

// timeparse.go normalizes the timestamp spellings callers actually use
// (CLI flags, query params, config) into UTC instants.

import (
	"fmt"
	"time"
)

// timeLayouts is the fixed, ordered list of accepted input layouts.
// First match wins. Layouts without a zone are parsed as UTC.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339, // covers trailing Z and explicit offsets
	"2006-01-02 15:04:05.999999",
}

// ParseTime parses a timestamp string against the accepted layouts and
// returns a UTC instant. Offset-naive inputs are assumed to be UTC; inputs
// carrying an offset are converted. Parsing the RFC3339 rendering of an
// already-parsed instant is idempotent.
//
// Returns an error wrapping ErrInvalidTimeFormat when no layout matches.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
}

// ParseRange parses both endpoints of a half-open range [start, end).
// An inverted range (start after end) wraps ErrInvalidConfiguration.
func ParseRange(start, end string) (TimeRange, error) {
	startT, err := ParseTime(start)
	if err != nil {
		return TimeRange{}, fmt.Errorf("start time: %w", err)
	}
	endT, err := ParseTime(end)
	if err != nil {
		return TimeRange{}, fmt.Errorf("end time: %w", err)
	}
	if startT.After(endT) {
		return TimeRange{}, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidConfiguration, FormatTime(startT), FormatTime(endT))
	}
	return TimeRange{Start: startT, End: endT}, nil
}

// FormatTime renders an instant the way chunk envelopes carry timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
