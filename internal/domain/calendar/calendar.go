// Package calendar partitions submissions into civil days.
//
// A Day has no time-of-day component, so two instants on the same calendar
// day in the configured location always map to the same Day.
package calendar

import (
	"fmt"
	"time"
)

// Layout is the wire and storage format of a Day.
const Layout = "2006-01-02"

// Day is a civil date.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the civil date of t in loc. A nil loc means UTC.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return DayOf(t, time.UTC), nil
}

// MustParseDay is ParseDay for constants in tests and fixtures.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool {
	return d == Day{}
}

// AddDays returns d shifted by n days (n may be negative).
func (d Day) AddDays(n int) Day {
	return DayOf(d.midnight().AddDate(0, 0, n), time.UTC)
}

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool {
	return d.midnight().Before(o.midnight())
}

// After reports whether d is strictly later than o.
func (d Day) After(o Day) bool {
	return d.midnight().After(o.midnight())
}

func (d Day) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Today returns the current civil day of clock in loc.
func Today(clock Clock, loc *time.Location) Day {
	if clock == nil {
		clock = SystemClock{}
	}
	return DayOf(clock.Now(), loc)
}
