// Package timeutil provides the datetime-input parsing and display helpers
// shared by the filter engine and the CLI.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// ParseInput parses a free-text date/time string into a UTC instant.
//
// Accepted forms, interpreted as local time:
//   - 2024-06-15
//   - 2024-06-15 10:30
//   - 2024-06-15 10:30:45
//
// Returns the zero time and false when the input is empty or unparseable.
func ParseInput(input string) (time.Time, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, input, time.Local); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders a UTC instant as local time for table display.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatDuration renders an elapsed duration for the status summary.
// Examples: 5.0ms, 1.2s, 2.5m.
func FormatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 0.01:
		return fmt.Sprintf("%.1fms", secs*1000)
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	default:
		return fmt.Sprintf("%.1fm", secs/60)
	}
}

// SaturatingAdd advances t by d, falling back to t itself when the result
// would overflow and wrap. Keeps tail queries safe at the extremes of the
// representable range.
func SaturatingAdd(t time.Time, d time.Duration) time.Time {
	next := t.Add(d)
	if d > 0 && next.Before(t) {
		return t
	}
	return next
}
