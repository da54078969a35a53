package model

import "slices"

// SingleEvent is a leaf event. It is either standalone or one occurrence
// of a RecurringEvent, in which case ParentID names the series.
type SingleEvent struct {
	details

	partOfSeries bool
	parentID     string
	intervals    []TimeInterval
}

// SingleParams is the input of NewSingleEvent.
type SingleParams struct {
	Params
	PartOfSeries bool
	ParentID     string
}

// NewSingleEvent validates p, fills in defaults and computes the per-day
// intervals. It returns an error wrapping ErrInvalidEvent and no event
// when p is not a valid event.
func NewSingleEvent(p SingleParams) (*SingleEvent, error) {
	if r := validateFields(p.Subject, p.StartDate, p.EndDate, p.StartTime, p.EndTime); !r.Valid {
		return nil, r.Err()
	}
	e := &SingleEvent{
		details:      newDetails(p.Params),
		partOfSeries: p.PartOfSeries,
		parentID:     p.ParentID,
	}
	if r := e.validate(); !r.Valid {
		return nil, r.Err()
	}
	e.rebuildIntervals()
	return e, nil
}

// PartOfSeries reports whether e was generated by a RecurringEvent.
func (e *SingleEvent) PartOfSeries() bool { return e.partOfSeries }

// ParentID is the id of the owning RecurringEvent, or "".
func (e *SingleEvent) ParentID() string { return e.parentID }

func (e *SingleEvent) SetAllowConflict(allow bool) {
	e.setAllowConflict(allow)
}

func (e *SingleEvent) Validate() ValidationResult {
	return e.validate()
}

func (e *SingleEvent) Leaves() []*SingleEvent {
	return []*SingleEvent{e}
}

func (e *SingleEvent) Intervals() []TimeInterval {
	return slices.Clone(e.intervals)
}

func (e *SingleEvent) DeepCopy() Event {
	return e.clone()
}

func (e *SingleEvent) clone() *SingleEvent {
	c := *e
	if e.allowConflict != nil {
		allow := *e.allowConflict
		c.allowConflict = &allow
	}
	c.intervals = slices.Clone(e.intervals)
	return &c
}

// CopyFrom ignores from; a single event has nothing to split.
func (e *SingleEvent) CopyFrom(src Event, _ *Date) {
	e.copyFields(src)
	e.rebuildIntervals()
}

func (e *SingleEvent) PrepareForUpdate() {
	e.rebuildIntervals()
}

func (e *SingleEvent) PinStartDate(d Date) {
	e.startDate = d
}

func (e *SingleEvent) Apply(p Patch) {
	e.apply(p)
}

// sameSlot compares everything but the id.
func (e *SingleEvent) sameSlot(o *SingleEvent) bool {
	a, b := e.details, o.details
	return a.subject == b.subject &&
		a.startDate == b.startDate &&
		a.startTime == b.startTime &&
		a.endDate == b.endDate &&
		a.endTime == b.endTime &&
		a.description == b.description &&
		a.location == b.location &&
		a.visibility == b.visibility &&
		a.AllowConflictSet() == b.AllowConflictSet() &&
		a.AllowConflict() == b.AllowConflict()
}

func (e *SingleEvent) isNil() bool { return e == nil }

// rebuildIntervals emits one interval per spanned day: clipped to the
// start time on the first day, to the end time on the last day, and the
// whole day in between. An invalid event has no intervals.
func (e *SingleEvent) rebuildIntervals() {
	e.intervals = e.intervals[:0]
	if !e.validate().Valid {
		return
	}
	for day := e.startDate; !day.After(e.endDate); day = day.AddDays(1) {
		start, end := StartOfDay, EndOfDay
		if day == e.startDate {
			start = e.startTime
		}
		if day == e.endDate {
			end = e.endTime
		}
		iv, err := NewTimeInterval(e.id, day, start, end)
		if err != nil {
			continue
		}
		e.intervals = append(e.intervals, iv)
	}
}
