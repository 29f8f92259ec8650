// Package system provides the wall clock and a pinned clock for replays and
// tests.
package system

import "time"

// Clock implements rag.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed struct {
	At time.Time
}

// NewFixed pins the clock at t, normalized to UTC.
func NewFixed(t time.Time) Fixed {
	return Fixed{At: t.UTC()}
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time {
	return f.At
}
