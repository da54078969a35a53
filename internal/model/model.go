package model

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls whether an event is exported as private.
type Visibility string

const (
	Public  Visibility = "PUBLIC"
	Private Visibility = "PRIVATE"
)

// Event is implemented by *SingleEvent and *RecurringEvent only.
//
// A SingleEvent is a leaf: the unit the calendar indexes. A RecurringEvent
// is a template that owns the SingleEvent occurrences generated from its
// recurrence rule.
type Event interface {
	ID() string
	Subject() string
	StartDate() Date
	StartTime() TimeOfDay
	EndDate() Date
	EndTime() TimeOfDay
	Description() string
	Location() string
	Visibility() Visibility
	AllDay() bool

	// AllowConflict is false when the flag was never set.
	AllowConflict() bool
	AllowConflictSet() bool
	SetAllowConflict(allow bool)

	// Validate checks the event's own shape, not its fit in a calendar.
	Validate() ValidationResult
	// Leaves returns the occurrences the calendar indexes.
	Leaves() []*SingleEvent
	// Intervals returns the per-day spans of every leaf.
	Intervals() []TimeInterval
	// DeepCopy returns an independent copy with the same ids.
	DeepCopy() Event
	// CopyFrom takes src's fields in place, keeping the receiver's id.
	// For a recurring event, from splits the series: occurrences before
	// from are kept, the rest are replaced by src's occurrences.
	CopyFrom(src Event, from *Date)
	// PrepareForUpdate recomputes derived leaves and intervals.
	PrepareForUpdate()
	// PinStartDate moves the event to start on d.
	PinStartDate(d Date)
	// Apply sets every field present in p.
	Apply(p Patch)

	isNil() bool
}

// IsNil reports whether ev is nil or a typed nil variant.
func IsNil(ev Event) bool {
	return ev == nil || ev.isNil()
}

// Params holds the fields shared by both event variants. A nil StartTime
// defaults to StartOfDay and a nil EndTime to EndOfDay; both defaults
// together denote an all-day event.
type Params struct {
	// ID is normally empty and generated; it is set when rebuilding a copy.
	ID            string
	Subject       string
	StartDate     Date
	StartTime     *TimeOfDay
	EndDate       Date
	EndTime       *TimeOfDay
	Description   string
	Location      string
	AllowConflict *bool
	Visibility    Visibility
}

type details struct {
	id            string
	subject       string
	startDate     Date
	startTime     TimeOfDay
	endDate       Date
	endTime       TimeOfDay
	description   string
	location      string
	allowConflict *bool
	visibility    Visibility
}

func newDetails(p Params) details {
	d := details{
		id:          p.ID,
		subject:     p.Subject,
		startDate:   p.StartDate,
		startTime:   StartOfDay,
		endDate:     p.EndDate,
		endTime:     EndOfDay,
		description: p.Description,
		location:    p.Location,
		visibility:  p.Visibility,
	}
	if p.StartTime != nil {
		d.startTime = *p.StartTime
	}
	if p.EndTime != nil {
		d.endTime = *p.EndTime
	}
	if p.AllowConflict != nil {
		allow := *p.AllowConflict
		d.allowConflict = &allow
	}
	if d.visibility == "" {
		d.visibility = Public
	}
	if d.id == "" {
		d.id = uuid.NewString()
	}
	return d
}

func (d *details) ID() string             { return d.id }
func (d *details) Subject() string        { return d.subject }
func (d *details) StartDate() Date        { return d.startDate }
func (d *details) StartTime() TimeOfDay   { return d.startTime }
func (d *details) EndDate() Date          { return d.endDate }
func (d *details) EndTime() TimeOfDay     { return d.endTime }
func (d *details) Description() string    { return d.description }
func (d *details) Location() string       { return d.location }
func (d *details) Visibility() Visibility { return d.visibility }

func (d *details) AllDay() bool {
	return d.startTime == StartOfDay && d.endTime == EndOfDay
}

func (d *details) AllowConflict() bool {
	return d.allowConflict != nil && *d.allowConflict
}

func (d *details) AllowConflictSet() bool {
	return d.allowConflict != nil
}

func (d *details) StartDateTime() time.Time { return d.startDate.At(d.startTime) }
func (d *details) EndDateTime() time.Time   { return d.endDate.At(d.endTime) }

func (d *details) setAllowConflict(allow bool) {
	d.allowConflict = &allow
}

// params rebuilds constructor input from d, keeping the id.
func (d *details) params() Params {
	start, end := d.startTime, d.endTime
	p := Params{
		ID:          d.id,
		Subject:     d.subject,
		StartDate:   d.startDate,
		StartTime:   &start,
		EndDate:     d.endDate,
		EndTime:     &end,
		Description: d.description,
		Location:    d.location,
		Visibility:  d.visibility,
	}
	if d.allowConflict != nil {
		allow := *d.allowConflict
		p.AllowConflict = &allow
	}
	return p
}

// copyFields takes every field of src except the id.
func (d *details) copyFields(src Event) {
	d.subject = src.Subject()
	d.startDate = src.StartDate()
	d.startTime = src.StartTime()
	d.endDate = src.EndDate()
	d.endTime = src.EndTime()
	d.description = src.Description()
	d.location = src.Location()
	d.visibility = src.Visibility()
	d.allowConflict = nil
	if src.AllowConflictSet() {
		d.setAllowConflict(src.AllowConflict())
	}
}

func (d *details) apply(p Patch) {
	if p.Subject != nil {
		d.subject = *p.Subject
	}
	if p.StartDate != nil {
		d.startDate = *p.StartDate
	}
	if p.StartTime != nil {
		d.startTime = *p.StartTime
	}
	if p.EndDate != nil {
		d.endDate = *p.EndDate
	}
	if p.EndTime != nil {
		d.endTime = *p.EndTime
	}
	if p.Description != nil {
		d.description = *p.Description
	}
	if p.Location != nil {
		d.location = *p.Location
	}
	if p.AllowConflict != nil {
		d.setAllowConflict(*p.AllowConflict)
	}
	if p.Visibility != nil {
		d.visibility = *p.Visibility
	}
}

func (d *details) validate() ValidationResult {
	start, end := d.startTime, d.endTime
	return validateFields(d.subject, d.startDate, d.endDate, &start, &end)
}

// validateFields applies the rules common to both variants, first failure
// wins.
func validateFields(subject string, startDate, endDate Date, startTime, endTime *TimeOfDay) ValidationResult {
	if startTime == nil && endTime != nil {
		return Invalid(ErrInvalidEvent, "Cannot set endTime if startTime is null")
	}
	if subject == "" || startDate.IsZero() || endDate.IsZero() {
		return Invalid(ErrInvalidEvent, "Missing required parameters.")
	}

	start := startDate.At(StartOfDay)
	if startTime != nil {
		start = startDate.At(*startTime)
	}
	end := startDate.At(EndOfDay)
	if endTime != nil {
		end = endDate.At(*endTime)
	}
	if end.Before(start) {
		return Invalid(ErrInvalidEvent, "End time cannot be before start time")
	}
	return Valid()
}
