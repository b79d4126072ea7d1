// internal/clock/clock.go

// Package clock turns wall-clock readings into civil dates.
package clock

import "time"

// Clock returns the current instant. Services take one at construction so
// tests can pin "today".
type Clock func() time.Time

// System reads the process clock.
func System() time.Time { return time.Now() }

// Today is the civil date of c's reading: midnight UTC.
func (c Clock) Today() time.Time {
	return Date(c())
}

// Date truncates t to midnight UTC of its UTC calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b. It is negative when b
// is before a.
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// Fixed returns a clock pinned to t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}
