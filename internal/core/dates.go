package core

import (
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// ParseDate parses YYYY-MM-DD (midnight UTC) or an RFC 3339 timestamp and
// returns the instant in UTC.
func ParseDate(s string) (time.Time, error) {
	t, _, err := parseDate(s)
	return t, err
}

// ParseDateBound parses a range bound. When upper is true and s carries no
// time of day, the bound is moved to the last second of that day so the whole
// day is included.
func ParseDateBound(s string, upper bool) (time.Time, error) {
	t, dayOnly, err := parseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if upper && dayOnly {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

func parseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t.UTC(), true, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, ErrInvalidDate
}
