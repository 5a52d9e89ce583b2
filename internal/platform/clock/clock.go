// Package clock supplies the current calendar day in the clinic's time zone.
//
// Calendar dates are carried as time.Time values at midnight UTC, which is
// how pgx scans a DATE column, so dates read from storage and dates computed
// here compare with Equal, Before and After.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// System is the wall clock in a fixed location.
type System struct {
	Loc *time.Location
}

func (s System) Now() time.Time {
	if s.Loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(s.Loc)
}

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Date returns the calendar day of t, in t's own location, as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is the current calendar day according to c.
func Today(c Clock) time.Time {
	return Date(c.Now())
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}
