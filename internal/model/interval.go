package model

import "fmt"

// TimeInterval is the portion of one event that falls on a single day.
// Values are immutable; build them with NewTimeInterval.
type TimeInterval struct {
	eventID string
	date    Date
	start   TimeOfDay
	end     TimeOfDay
}

// NewTimeInterval fails when end is before start.
func NewTimeInterval(eventID string, date Date, start, end TimeOfDay) (TimeInterval, error) {
	if end < start {
		return TimeInterval{}, NewValidationError(ErrInvalidEvent, "End time cannot be before start time")
	}
	return TimeInterval{eventID: eventID, date: date, start: start, end: end}, nil
}

func (t TimeInterval) EventID() string  { return t.eventID }
func (t TimeInterval) Date() Date       { return t.date }
func (t TimeInterval) Start() TimeOfDay { return t.start }
func (t TimeInterval) End() TimeOfDay   { return t.end }

// ConflictsWith reports whether one of t's endpoints lies strictly inside
// one of the other intervals. An interval that fully contains another
// without an endpoint inside it does not count, and touching endpoints
// never conflict.
func (t TimeInterval) ConflictsWith(others IntervalSet) bool {
	for other := range others {
		if other.start < t.start && t.start < other.end {
			return true
		}
		if other.start < t.end && t.end < other.end {
			return true
		}
	}
	return false
}

func (t TimeInterval) String() string {
	return fmt.Sprintf("TimeInterval[%s %s - %s]", t.date, t.start, t.end)
}

// IntervalSet is a set of intervals sharing one day in the daily index.
type IntervalSet map[TimeInterval]struct{}

func (s IntervalSet) Add(t TimeInterval) {
	s[t] = struct{}{}
}

// RemoveEvent drops every interval owned by eventID.
func (s IntervalSet) RemoveEvent(eventID string) {
	for t := range s {
		if t.eventID == eventID {
			delete(s, t)
		}
	}
}
