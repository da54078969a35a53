package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventcal/internal/calendar"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// propAllowConflict carries an explicit allow-conflict flag.
const propAllowConflict = "X-EVENTCAL-ALLOW-CONFLICT"

// ImportResult counts what Import did with each VEVENT.
type ImportResult struct {
	Created int
	// Skipped counts VEVENTs that cannot be represented: overrides of a
	// single instance and recurrence rules other than a bounded weekly one.
	Skipped int
}

// parsedEvent is the normalized form of one VEVENT.
type parsedEvent struct {
	UID string

	Summary     string
	Description string
	Location    string
	Private     bool
	// AllowConflict is nil when the VEVENT carries no flag.
	AllowConflict *bool

	Start  time.Time
	End    time.Time
	HasEnd bool
	AllDay bool

	RawRRule   string
	HasExDate  bool
	IsOverride bool
}

// Import reads a VCALENDAR from r and adds its events to cal. Events
// without RRULE become single events and bounded weekly rules become
// recurring events; anything else is skipped and counted. The first event
// cal rejects aborts the import.
func Import(cal *calendar.Calendar, r io.Reader) (ImportResult, error) {
	var res ImportResult

	ic, err := ical.ParseCalendar(r)
	if err != nil {
		appLog.Error("ics parse failed", err, "calendar", cal.Title())
		return res, fmt.Errorf("ics: parse: %w", err)
	}

	for _, comp := range ic.Events() {
		pe, perr := parseVEvent(comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr, "calendar", cal.Title())
			res.Skipped++
			continue
		}
		if pe.IsOverride || pe.HasExDate {
			appLog.Debug("ics: skipping instance override", "uid", pe.UID)
			res.Skipped++
			continue
		}

		ev, berr := buildEvent(pe)
		if errors.Is(berr, errUnsupportedRule) {
			appLog.Debug("ics: skipping unsupported rule", "uid", pe.UID, "rrule", pe.RawRRule)
			res.Skipped++
			continue
		}
		if berr != nil {
			return res, fmt.Errorf("ics: event %q: %w", pe.UID, berr)
		}
		if err := cal.CreateEvent(ev); err != nil {
			return res, fmt.Errorf("ics: event %q: %w", pe.UID, err)
		}
		res.Created++
	}

	appLog.Info("ics import completed", "calendar", cal.Title(), "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyClass); p != nil {
		out.Private = strings.EqualFold(strings.TrimSpace(p.Value), string(model.Private))
	}
	if p := ve.GetProperty(ical.ComponentProperty(propAllowConflict)); p != nil {
		allow := strings.EqualFold(strings.TrimSpace(p.Value), "TRUE")
		out.AllowConflict = &allow
	}

	// Times are read as wall clock; zones are not modelled.
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := parseICSTime(dtStart.Value)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = isDateValue(dtStart)

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, err := parseICSTime(dtEnd.Value)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
		out.HasEnd = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	out.HasExDate = len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0
	out.IsOverride = ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil

	return out, nil
}

// isDateValue reports whether prop holds a DATE rather than a DATE-TIME.
func isDateValue(prop *ical.IANAProperty) bool {
	if params := prop.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(prop.Value, "T")
}

// span converts DTSTART/DTEND to model fields. DATE ends are exclusive and
// a timed end at midnight closes the previous day.
func (pe parsedEvent) span() model.Params {
	p := model.Params{
		Subject:       pe.Summary,
		Description:   pe.Description,
		Location:      pe.Location,
		AllowConflict: pe.AllowConflict,
		StartDate:     model.DateOf(pe.Start),
		EndDate:       model.DateOf(pe.Start),
	}
	if pe.Private {
		p.Visibility = model.Private
	}

	if pe.AllDay {
		if pe.HasEnd {
			if last := model.DateOf(pe.End).AddDays(-1); last.After(p.StartDate) {
				p.EndDate = last
			}
		}
		return p
	}

	start := model.TimeOfDayOf(pe.Start)
	end := start
	if pe.HasEnd {
		p.EndDate = model.DateOf(pe.End)
		end = model.TimeOfDayOf(pe.End)
		if end == model.StartOfDay && p.EndDate.After(p.StartDate) {
			p.EndDate = p.EndDate.AddDays(-1)
			end = model.EndOfDay
		}
	}
	p.StartTime = &start
	p.EndTime = &end
	return p
}

func buildEvent(pe parsedEvent) (model.Event, error) {
	p := pe.span()
	if pe.RawRRule == "" {
		ev, err := model.NewSingleEvent(model.SingleParams{Params: p})
		if err != nil {
			return nil, err
		}
		return ev, nil
	}

	rule, err := parseWeeklyRule(pe.RawRRule, p.StartDate)
	if err != nil {
		return nil, err
	}
	ev, err := model.NewRecurringEvent(model.RecurringParams{
		Params:            p,
		RecurrenceDays:    rule.Days,
		RepeatCount:       rule.Count,
		RecurrenceEndDate: rule.Until,
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// parseICSTime parses a basic ICS date/date-time string into time.Time.
// Floating and TZID times are taken as UTC wall clock.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		const layout = "20060102T150405Z"
		return time.Parse(layout, v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		const layout = "20060102T150405"
		return time.ParseInLocation(layout, v, time.UTC)
	}

	// Date-only (all-day), e.g., 20250101
	const layoutDate = "20060102"
	return time.ParseInLocation(layoutDate, v, time.UTC)
}
