package models

import "time"

// DateOf truncates a moment to its UTC calendar date. Grant and request
// windows are date-based: comparing truncated dates keeps both window
// boundaries inclusive.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
