package utils

import (
	"fmt"
	"time"
)

// ParseTimestamp returns a time from an RFC 3339 string or an error.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// SQLTimestamp formats a time for embedding in a TIMESTAMP literal.
func SQLTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
