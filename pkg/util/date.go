package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339 (with or without fractional seconds), unix seconds
// and unix milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		// anything past year 33658 in seconds is treated as milliseconds
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// TruncateMillis drops sub-millisecond precision and normalises to UTC, the
// precision every storage backend round-trips exactly.
func TruncateMillis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
