package model

import (
	"fmt"
	"time"
)

// Date is a calendar day without a time or a location. Unlike time.Time it
// is comparable with == and safe to use as a map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized date, so NewDate(2025, 11, 31) is 2025-12-01.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the date portion of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses s with a time.Parse layout and keeps the date portion.
func ParseDate(layout, s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight of d in UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// At combines d with a time of day, in UTC.
func (d Date) At(t TimeOfDay) time.Time {
	return d.Time().Add(time.Duration(t))
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to
// or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeOfDay is an offset from midnight, between StartOfDay and EndOfDay.
type TimeOfDay time.Duration

const (
	StartOfDay TimeOfDay = 0
	EndOfDay   TimeOfDay = TimeOfDay(24*time.Hour - time.Nanosecond)
)

// Clock returns the time of day hh:mm.
func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// TimeOfDayOf returns the wall-clock portion of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// ParseTimeOfDay parses s with a time.Parse layout such as "15:04" or "03:04 PM".
func ParseTimeOfDay(layout, s string) (TimeOfDay, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, err
	}
	return TimeOfDayOf(t), nil
}

// Add shifts t by d without wrapping around midnight.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	out := TimeOfDay(time.Duration(t) + d)
	if out < StartOfDay {
		return StartOfDay
	}
	if out > EndOfDay {
		return EndOfDay
	}
	return out
}

// Format renders t with a time.Format layout.
func (t TimeOfDay) Format(layout string) string {
	return Date{Year: 2000, Month: time.January, Day: 1}.At(t).Format(layout)
}

func (t TimeOfDay) String() string {
	if time.Duration(t)%time.Minute == 0 {
		return t.Format("15:04")
	}
	return t.Format("15:04:05.999999999")
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
