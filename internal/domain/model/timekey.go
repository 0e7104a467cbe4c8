package model

import "time"

// Clock returns the current instant. Every time-dependent operation takes one
// so tests can pin "now".
type Clock func() time.Time

// SystemClock is the only place wall-clock time is read.
func SystemClock() time.Time { return time.Now().UTC() }

// OrSystem returns c, or SystemClock when c is nil.
func (c Clock) OrSystem() Clock {
	if c == nil {
		return SystemClock
	}
	return c
}

const dayKeyLayout = "2006-01-02"

// DayKey maps an instant to its UTC calendar day, e.g. "2025-03-09".
func DayKey(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// Elapsed reports whether interval has passed since anchor at now.
func Elapsed(anchor time.Time, interval time.Duration, now time.Time) bool {
	return !now.Before(anchor.Add(interval))
}

func timePtr(t time.Time) *time.Time { return &t }
