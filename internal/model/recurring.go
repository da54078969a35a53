package model

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventcal/internal/log"
)

// MaxOccurrences caps the expansion of one series. A larger repeat count
// is invalid; a series bounded by an end date is truncated.
const MaxOccurrences = 5000

var errOccurrenceCap = errors.New("max occurrences reached")

var rruleDays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// WeekdayOf converts an rrule weekday (MO=0 ... SU=6) to a time.Weekday.
func WeekdayOf(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

// RecurringEvent repeats a one-day template on a set of weekdays, bounded
// either by a number of occurrences or by an end date. It owns the
// occurrences it generates; they are regenerated wholesale whenever the
// template or the recurrence parameters change.
type RecurringEvent struct {
	details

	days        []time.Weekday
	repeatCount *int
	until       *Date

	children []*SingleEvent
}

// RecurringParams is the input of NewRecurringEvent. Exactly one of
// RepeatCount and RecurrenceEndDate must be set.
type RecurringParams struct {
	Params
	RecurrenceDays    []time.Weekday
	RepeatCount       *int
	RecurrenceEndDate *Date
}

// NewRecurringEvent validates p and generates the occurrences. It returns
// an error wrapping ErrInvalidEvent and no event when p is invalid.
func NewRecurringEvent(p RecurringParams) (*RecurringEvent, error) {
	if r := validateFields(p.Subject, p.StartDate, p.EndDate, p.StartTime, p.EndTime); !r.Valid {
		return nil, r.Err()
	}
	e := &RecurringEvent{details: newDetails(p.Params)}
	e.setDays(p.RecurrenceDays)
	e.repeatCount = cloneInt(p.RepeatCount)
	e.until = cloneDate(p.RecurrenceEndDate)

	if r := e.Validate(); !r.Valid {
		return nil, r.Err()
	}
	e.generate()
	return e, nil
}

// RecurrenceDays returns the weekdays in Sunday-first order.
func (e *RecurringEvent) RecurrenceDays() []time.Weekday {
	return slices.Clone(e.days)
}

func (e *RecurringEvent) RepeatCount() (int, bool) {
	if e.repeatCount == nil {
		return 0, false
	}
	return *e.repeatCount, true
}

func (e *RecurringEvent) RecurrenceEndDate() (Date, bool) {
	if e.until == nil {
		return Date{}, false
	}
	return *e.until, true
}

// Occurrences returns the generated occurrences in date order.
func (e *RecurringEvent) Occurrences() []*SingleEvent {
	return slices.Clone(e.children)
}

// SetAllowConflict sets the flag on the template and on every occurrence.
func (e *RecurringEvent) SetAllowConflict(allow bool) {
	e.setAllowConflict(allow)
	for _, c := range e.children {
		c.setAllowConflict(allow)
	}
}

func (e *RecurringEvent) Validate() ValidationResult {
	if r := e.validate(); !r.Valid {
		return r
	}
	if len(e.days) == 0 {
		return Invalid(ErrInvalidEvent, "Missing required parameters.")
	}
	if e.repeatCount == nil && e.until == nil {
		return Invalid(ErrInvalidEvent, "Missing required parameters.")
	}
	if e.repeatCount != nil && e.until != nil {
		return Invalid(ErrInvalidEvent, "Cannot set both repeatCount and recurrenceEndDate")
	}
	if e.repeatCount != nil && *e.repeatCount > MaxOccurrences {
		return Invalid(ErrInvalidEvent, "Too many occurrences")
	}
	if e.startDate.Before(e.endDate) {
		return Invalid(ErrInvalidEvent, "Recurring event cannot cross day")
	}
	return Valid()
}

func (e *RecurringEvent) Leaves() []*SingleEvent {
	return slices.Clone(e.children)
}

// Intervals is the union of the occurrences' current intervals.
func (e *RecurringEvent) Intervals() []TimeInterval {
	var out []TimeInterval
	for _, c := range e.children {
		out = append(out, c.intervals...)
	}
	return out
}

func (e *RecurringEvent) DeepCopy() Event {
	c := &RecurringEvent{
		details:     e.details,
		days:        slices.Clone(e.days),
		repeatCount: cloneInt(e.repeatCount),
		until:       cloneDate(e.until),
	}
	if e.allowConflict != nil {
		c.setAllowConflict(*e.allowConflict)
	}
	c.children = make([]*SingleEvent, 0, len(e.children))
	for _, child := range e.children {
		c.children = append(c.children, child.clone())
	}
	return c
}

// CopyFrom takes src's template and recurrence fields. With a nil from the
// whole series is replaced. Otherwise the series keeps its start date and
// its occurrences before from, and takes src's occurrences from then on.
func (e *RecurringEvent) CopyFrom(src Event, from *Date) {
	rs, ok := src.(*RecurringEvent)
	if !ok {
		e.copyFields(src)
		e.generate()
		return
	}

	startDate, endDate := e.startDate, e.endDate
	e.copyFields(rs)
	e.days = slices.Clone(rs.days)
	e.repeatCount = cloneInt(rs.repeatCount)
	e.until = cloneDate(rs.until)

	kept := make([]*SingleEvent, 0, len(e.children)+len(rs.children))
	if from != nil {
		e.startDate, e.endDate = startDate, endDate
		for _, c := range e.children {
			if c.startDate.Before(*from) {
				kept = append(kept, c)
			}
		}
	}
	for _, c := range rs.children {
		kept = append(kept, c.clone())
	}
	e.children = kept
}

// PrepareForUpdate drops occurrences that start before the template.
func (e *RecurringEvent) PrepareForUpdate() {
	e.children = slices.DeleteFunc(e.children, func(c *SingleEvent) bool {
		return c.startDate.Before(e.startDate)
	})
}

// PinStartDate moves the template to d. The template stays a one-day
// event, so the end date moves with it.
func (e *RecurringEvent) PinStartDate(d Date) {
	e.startDate = d
	e.endDate = d
}

// Apply sets the fields present in p and regenerates the occurrences.
// Setting one recurrence bound clears the other unless p sets both.
func (e *RecurringEvent) Apply(p Patch) {
	e.apply(p)
	if p.RecurrenceDays != nil {
		e.setDays(p.RecurrenceDays)
	}
	if p.RepeatCount != nil {
		e.repeatCount = cloneInt(p.RepeatCount)
		if p.RecurrenceEndDate == nil {
			e.until = nil
		}
	}
	if p.RecurrenceEndDate != nil {
		e.until = cloneDate(p.RecurrenceEndDate)
		if p.RepeatCount == nil {
			e.repeatCount = nil
		}
	}
	e.generate()
}

// RRuleOption describes the series as an RFC 5545 weekly rule, with the
// bound the series was built with.
func (e *RecurringEvent) RRuleOption() rrule.ROption {
	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   e.startDate.At(e.startTime),
		Byweekday: e.rruleDays(),
	}
	if e.repeatCount != nil {
		opt.Count = *e.repeatCount
	}
	if e.until != nil {
		opt.Until = e.until.At(EndOfDay).Truncate(time.Second)
	}
	return opt
}

// FollowsRule reports whether the occurrences are exactly what the rule
// generates from the template. It is false once an update has split the
// series.
func (e *RecurringEvent) FollowsRule() bool {
	fresh := &RecurringEvent{
		details:     e.details,
		days:        e.days,
		repeatCount: e.repeatCount,
		until:       e.until,
	}
	fresh.generate()
	if len(fresh.children) != len(e.children) {
		return false
	}
	for i, c := range e.children {
		if !c.sameSlot(fresh.children[i]) {
			return false
		}
	}
	return true
}

func (e *RecurringEvent) isNil() bool { return e == nil }

// limit is the last date the expansion may reach.
func (e *RecurringEvent) limit() Date {
	if e.until != nil {
		return *e.until
	}
	return e.endDate.AddDays(7 * *e.repeatCount)
}

// occurrenceDates walks the template's weekdays from the start date up to
// the limit, stopping early once repeatCount dates were emitted.
func (e *RecurringEvent) occurrenceDates() []Date {
	if e.repeatCount != nil && *e.repeatCount <= 0 {
		return nil
	}
	limit := e.limit()
	if limit.Before(e.startDate) {
		return nil
	}

	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   e.startDate.Time(),
		Until:     limit.Time(),
		Byweekday: e.rruleDays(),
	}
	if e.repeatCount != nil {
		opt.Count = *e.repeatCount
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		appLog.Error("recurrence: failed to build rule", err, "id", e.id, "subject", e.subject)
		return nil
	}

	var out []Date
	next := r.Iterator()
	for t, ok := next(); ok; t, ok = next() {
		if len(out) == MaxOccurrences {
			appLog.Error("recurrence: truncated occurrences due to cap", errOccurrenceCap,
				"id", e.id, "subject", e.subject, "cap", MaxOccurrences)
			break
		}
		out = append(out, DateOf(t))
	}
	return out
}

// generate replaces the occurrences with a fresh expansion. An invalid
// series has none.
func (e *RecurringEvent) generate() {
	e.children = nil
	if !e.Validate().Valid {
		return
	}

	start, end := e.startTime, e.endTime
	for _, day := range e.occurrenceDates() {
		child, err := NewSingleEvent(SingleParams{
			Params: Params{
				Subject:       e.subject,
				StartDate:     day,
				StartTime:     &start,
				EndDate:       day,
				EndTime:       &end,
				Description:   e.description,
				Location:      e.location,
				AllowConflict: e.allowConflict,
				Visibility:    e.visibility,
			},
			PartOfSeries: true,
			ParentID:     e.id,
		})
		if err != nil {
			appLog.Error("recurrence: skipping invalid occurrence", err, "id", e.id, "date", day)
			continue
		}
		e.children = append(e.children, child)
	}
}

func (e *RecurringEvent) setDays(days []time.Weekday) {
	if days == nil {
		e.days = nil
		return
	}
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday || slices.Contains(out, d) {
			continue
		}
		out = append(out, d)
	}
	slices.Sort(out)
	e.days = out
}

func (e *RecurringEvent) rruleDays() []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(e.days))
	for _, d := range e.days {
		out = append(out, rruleDays[d])
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDate(p *Date) *Date {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
