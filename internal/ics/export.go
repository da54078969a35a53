package ics

import (
	"maps"
	"slices"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventcal/internal/calendar"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const productID = "-//eventcal//eventcal//EN"

// Export renders cal as a VCALENDAR. A series whose occurrences still
// match its rule is written as one VEVENT with an RRULE; a series that was
// split by an update is written occurrence by occurrence, like standalone
// events.
func Export(cal *calendar.Calendar) string {
	return exportAt(cal, time.Now().UTC())
}

func exportAt(cal *calendar.Calendar, stamp time.Time) string {
	out := ical.NewCalendar()
	out.SetMethod(ical.MethodPublish)
	out.SetProductId(productID)
	if cal.Title() != "" {
		out.SetXWRCalName(cal.Title())
	}

	written := make(map[string]bool)
	series := cal.RecurringEvents()
	for _, id := range slices.Sorted(maps.Keys(series)) {
		r := series[id]
		if len(r.Leaves()) == 0 {
			continue
		}
		if !r.FollowsRule() {
			appLog.Debug("ics: exporting split series per occurrence", "id", id, "subject", r.Subject())
			continue
		}
		ve := out.AddEvent(r.ID())
		writeCommon(ve, r, stamp)
		ve.SetProperty(ical.ComponentPropertyRrule, ruleString(r))
		for _, leaf := range r.Leaves() {
			written[leaf.ID()] = true
		}
	}

	for _, leaf := range cal.Events() {
		if written[leaf.ID()] {
			continue
		}
		writeCommon(out.AddEvent(leaf.ID()), leaf, stamp)
	}
	return out.Serialize()
}

// writeCommon sets the fields shared by standalone events and series
// masters. For a series the template's start and end describe the first
// instance.
func writeCommon(ve *ical.VEvent, ev model.Event, stamp time.Time) {
	ve.SetDtStampTime(stamp)
	ve.SetSummary(ev.Subject())
	if ev.Description() != "" {
		ve.SetDescription(ev.Description())
	}
	if ev.Location() != "" {
		ve.SetLocation(ev.Location())
	}
	if ev.Visibility() == model.Private {
		ve.SetProperty(ical.ComponentPropertyClass, string(model.Private))
	}
	if ev.AllowConflictSet() {
		flag := "FALSE"
		if ev.AllowConflict() {
			flag = "TRUE"
		}
		ve.SetProperty(ical.ComponentProperty(propAllowConflict), flag)
	}

	if ev.AllDay() {
		ve.SetAllDayStartAt(ev.StartDate().Time())
		ve.SetAllDayEndAt(ev.EndDate().AddDays(1).Time())
		return
	}
	ve.SetStartAt(ev.StartDate().At(ev.StartTime()))
	if ev.EndTime() == model.EndOfDay {
		ve.SetEndAt(ev.EndDate().AddDays(1).Time())
		return
	}
	ve.SetEndAt(ev.EndDate().At(ev.EndTime()))
}
