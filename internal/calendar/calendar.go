// Package calendar stores events, keeps a per-day index of their intervals
// for conflict detection, and performs all-or-nothing updates and deletes.
//
// A Calendar is not safe for concurrent use. Callers sharing one across
// goroutines must serialize access themselves.
package calendar

import (
	"cmp"
	"maps"
	"slices"
	"time"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// key is the composite key that makes a leaf unique within a calendar.
type key struct {
	subject string
	date    model.Date
	time    model.TimeOfDay
}

func keyOf(e *model.SingleEvent) key {
	return key{subject: e.Subject(), date: e.StartDate(), time: e.StartTime()}
}

type Calendar struct {
	title         string
	allowConflict bool

	byKey     map[key]*model.SingleEvent
	byID      map[string]*model.SingleEvent
	recurring map[string]*model.RecurringEvent
	daily     map[model.Date]model.IntervalSet

	listeners []Listener
}

type Option func(*Calendar)

// WithAllowConflict sets the default used for events that do not set
// their own allow-conflict flag.
func WithAllowConflict(allow bool) Option {
	return func(c *Calendar) { c.allowConflict = allow }
}

func New(title string, opts ...Option) *Calendar {
	c := &Calendar{
		title:     title,
		byKey:     make(map[key]*model.SingleEvent),
		byID:      make(map[string]*model.SingleEvent),
		recurring: make(map[string]*model.RecurringEvent),
		daily:     make(map[model.Date]model.IntervalSet),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calendar) Title() string           { return c.title }
func (c *Calendar) SetTitle(title string)   { c.title = title }
func (c *Calendar) AllowConflict() bool     { return c.allowConflict }
func (c *Calendar) SetAllowConflict(a bool) { c.allowConflict = a }
func (c *Calendar) Len() int                { return len(c.byID) }

// EventsByID returns a snapshot of the leaf index.
func (c *Calendar) EventsByID() map[string]*model.SingleEvent {
	return maps.Clone(c.byID)
}

// RecurringEvents returns a snapshot of the series index.
func (c *Calendar) RecurringEvents() map[string]*model.RecurringEvent {
	return maps.Clone(c.recurring)
}

// Events returns every leaf ordered by start date, start time and subject.
func (c *Calendar) Events() []*model.SingleEvent {
	return sortLeaves(slices.Collect(maps.Values(c.byID)))
}

// Event resolves an id to a series or, failing that, to a leaf.
func (c *Calendar) Event(id string) (model.Event, bool) {
	if r, ok := c.recurring[id]; ok {
		return r, true
	}
	if e, ok := c.byID[id]; ok {
		return e, true
	}
	return nil, false
}

// CreateEvent validates ev and indexes every leaf it expands to. An event
// without its own allow-conflict flag takes the calendar default. On
// failure nothing is indexed and the error wraps ErrInvalidEvent,
// ErrDuplicate or ErrConflict.
func (c *Calendar) CreateEvent(ev model.Event) error {
	if model.IsNil(ev) {
		return ErrNilEvent
	}
	if !ev.AllowConflictSet() {
		ev.SetAllowConflict(c.allowConflict)
	}
	if r := c.validate(ev); !r.Valid {
		appLog.Debug("calendar: rejected event", "calendar", c.title, "subject", ev.Subject(), "reason", r.Message)
		return r.Err()
	}

	c.index(ev)
	for _, leaf := range ev.Leaves() {
		c.notifyAdded(leaf)
	}
	appLog.Debug("calendar: event created", "calendar", c.title, "id", ev.ID(), "subject", ev.Subject(), "leaves", len(ev.Leaves()))
	return nil
}

// CheckIsValid checks leaves against the calendar: a leaf whose id or
// composite key is taken is a duplicate, and a leaf whose interval
// conflicts with an indexed one is rejected unless either side allows
// conflicts. Leaves of the same batch are not checked against each other.
func (c *Calendar) CheckIsValid(leaves []*model.SingleEvent) model.ValidationResult {
	for _, leaf := range leaves {
		if leaf == nil {
			continue
		}
		if c.hasID(leaf.ID()) {
			return model.Invalid(ErrDuplicate, msgDuplicate)
		}
		if _, ok := c.byKey[keyOf(leaf)]; ok {
			return model.Invalid(ErrDuplicate, msgDuplicate)
		}
		if c.allows(leaf) {
			continue
		}
		for _, iv := range leaf.Intervals() {
			if iv.ConflictsWith(c.blocking(iv.Date())) {
				return model.Invalid(ErrConflict, msgConflict)
			}
		}
	}
	return model.Valid()
}

// DeleteEvent removes ev's series registration, leaves and intervals. If
// a leaf is missing the call fails with ErrNotFound and every removal it
// made is undone.
func (c *Calendar) DeleteEvent(ev model.Event) error {
	if model.IsNil(ev) {
		return ErrNilEvent
	}

	var parent *model.RecurringEvent
	if r, ok := ev.(*model.RecurringEvent); ok {
		parent, ok = c.recurring[r.ID()]
		if !ok {
			return model.Invalid(ErrNotFound, msgNotFound).Err()
		}
		delete(c.recurring, r.ID())
	}

	leaves := ev.Leaves()
	removed := make([]*model.SingleEvent, 0, len(leaves))
	for _, leaf := range leaves {
		k := keyOf(leaf)
		cur, ok := c.byKey[k]
		_, indexed := c.byID[leaf.ID()]
		if !ok || cur.ID() != leaf.ID() || !indexed {
			for _, r := range removed {
				c.byKey[keyOf(r)] = r
				c.byID[r.ID()] = r
			}
			if parent != nil {
				c.recurring[parent.ID()] = parent
			}
			appLog.Debug("calendar: delete rolled back", "calendar", c.title, "id", ev.ID(), "missing", leaf.ID())
			return model.Invalid(ErrNotFound, msgNotFound).Err()
		}
		removed = append(removed, cur)
		delete(c.byKey, k)
		delete(c.byID, leaf.ID())
	}

	for _, leaf := range removed {
		for _, iv := range leaf.Intervals() {
			bucket, ok := c.daily[iv.Date()]
			if !ok {
				continue
			}
			bucket.RemoveEvent(iv.EventID())
			if len(bucket) == 0 {
				delete(c.daily, iv.Date())
			}
		}
	}
	appLog.Debug("calendar: event deleted", "calendar", c.title, "id", ev.ID(), "leaves", len(removed))
	return nil
}

// GetEvent looks a leaf up by its composite key.
func (c *Calendar) GetEvent(subject string, date model.Date, start model.TimeOfDay) (*model.SingleEvent, bool) {
	e, ok := c.byKey[key{subject: subject, date: date, time: start}]
	return e, ok
}

// GetEventByDate returns the leaves occupying any of dates, each once,
// ordered like Events.
func (c *Calendar) GetEventByDate(dates ...model.Date) []*model.SingleEvent {
	seen := make(map[string]*model.SingleEvent)
	for _, d := range dates {
		for iv := range c.daily[d] {
			if e, ok := c.byID[iv.EventID()]; ok {
				seen[e.ID()] = e
			}
		}
	}
	return sortLeaves(slices.Collect(maps.Values(seen)))
}

// IsBusy reports whether the minute ending at t on date conflicts with an
// indexed interval. The start minute of an event is not busy; its end is.
func (c *Calendar) IsBusy(date model.Date, t model.TimeOfDay) bool {
	probe, err := model.NewTimeInterval("", date, t.Add(-time.Minute), t)
	if err != nil {
		return false
	}
	return probe.ConflictsWith(c.daily[date])
}

func (c *Calendar) validate(ev model.Event) model.ValidationResult {
	if r := ev.Validate(); !r.Valid {
		return r
	}
	if _, ok := ev.(*model.RecurringEvent); ok && c.hasID(ev.ID()) {
		return model.Invalid(ErrDuplicate, msgDuplicate)
	}
	return c.CheckIsValid(ev.Leaves())
}

// hasID reports whether id names an indexed leaf or series.
func (c *Calendar) hasID(id string) bool {
	if _, ok := c.byID[id]; ok {
		return true
	}
	_, ok := c.recurring[id]
	return ok
}

// index writes ev into every index without validation. Writing an already
// indexed leaf again is harmless.
func (c *Calendar) index(ev model.Event) {
	for _, leaf := range ev.Leaves() {
		c.byKey[keyOf(leaf)] = leaf
		c.byID[leaf.ID()] = leaf
		for _, iv := range leaf.Intervals() {
			bucket, ok := c.daily[iv.Date()]
			if !ok {
				bucket = make(model.IntervalSet)
				c.daily[iv.Date()] = bucket
			}
			bucket.Add(iv)
		}
	}
	if r, ok := ev.(*model.RecurringEvent); ok {
		c.recurring[r.ID()] = r
	}
}

// allows resolves a tri-state allow-conflict flag against the default.
func (c *Calendar) allows(ev model.Event) bool {
	if ev.AllowConflictSet() {
		return ev.AllowConflict()
	}
	return c.allowConflict
}

// blocking returns the intervals on date whose owner does not allow
// conflicts.
func (c *Calendar) blocking(date model.Date) model.IntervalSet {
	bucket := c.daily[date]
	out := make(model.IntervalSet, len(bucket))
	for iv := range bucket {
		if owner, ok := c.byID[iv.EventID()]; ok && c.allows(owner) {
			continue
		}
		out.Add(iv)
	}
	return out
}

func sortLeaves(events []*model.SingleEvent) []*model.SingleEvent {
	slices.SortFunc(events, func(a, b *model.SingleEvent) int {
		return cmp.Or(
			a.StartDate().Compare(b.StartDate()),
			cmp.Compare(a.StartTime(), b.StartTime()),
			cmp.Compare(a.Subject(), b.Subject()),
			cmp.Compare(a.ID(), b.ID()),
		)
	})
	return events
}
