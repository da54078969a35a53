package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"eventcal/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	// endOfDayClock is how the last instant of a day is written on the wire.
	endOfDayClock = "24:00"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// eventDTO is the JSON view of one indexed occurrence.
type eventDTO struct {
	ID            string `json:"id"`
	SeriesID      string `json:"series_id,omitempty"`
	Subject       string `json:"subject"`
	StartDate     string `json:"start_date"`
	StartTime     string `json:"start_time,omitempty"`
	EndDate       string `json:"end_date"`
	EndTime       string `json:"end_time,omitempty"`
	AllDay        bool   `json:"all_day"`
	Description   string `json:"description,omitempty"`
	Location      string `json:"location,omitempty"`
	Private       bool   `json:"private"`
	AllowConflict bool   `json:"allow_conflict"`
}

func toDTO(e *model.SingleEvent) eventDTO {
	dto := eventDTO{
		ID:            e.ID(),
		Subject:       e.Subject(),
		StartDate:     e.StartDate().String(),
		EndDate:       e.EndDate().String(),
		AllDay:        e.AllDay(),
		Description:   e.Description(),
		Location:      e.Location(),
		Private:       e.Visibility() == model.Private,
		AllowConflict: e.AllowConflict(),
	}
	if e.PartOfSeries() {
		dto.SeriesID = e.ParentID()
	}
	if !dto.AllDay {
		dto.StartTime = formatClock(e.StartTime())
		dto.EndTime = formatClock(e.EndTime())
	}
	return dto
}

func toDTOs(events []*model.SingleEvent) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toDTO(e))
	}
	return out
}

// recurrenceDTO describes a weekly rule. Exactly one of Count and Until
// must be set when creating a series.
type recurrenceDTO struct {
	Days  []string `json:"days"`
	Count *int     `json:"count,omitempty"`
	Until *string  `json:"until,omitempty"`
}

// eventRequest is the body of POST .../events. A missing end date means
// the start date; missing times make the event start or end with the day.
type eventRequest struct {
	Subject       string         `json:"subject"`
	StartDate     string         `json:"start_date"`
	StartTime     *string        `json:"start_time,omitempty"`
	EndDate       string         `json:"end_date,omitempty"`
	EndTime       *string        `json:"end_time,omitempty"`
	Description   string         `json:"description,omitempty"`
	Location      string         `json:"location,omitempty"`
	Private       bool           `json:"private,omitempty"`
	AllowConflict *bool          `json:"allow_conflict,omitempty"`
	Recurrence    *recurrenceDTO `json:"recurrence,omitempty"`
}

func (req eventRequest) event() (model.Event, error) {
	p := model.Params{
		Subject:       req.Subject,
		Description:   req.Description,
		Location:      req.Location,
		AllowConflict: req.AllowConflict,
	}
	if req.Private {
		p.Visibility = model.Private
	}

	var err error
	if p.StartDate, err = parseDate("start_date", req.StartDate); err != nil {
		return nil, err
	}
	p.EndDate = p.StartDate
	if req.EndDate != "" {
		if p.EndDate, err = parseDate("end_date", req.EndDate); err != nil {
			return nil, err
		}
	}
	if p.StartTime, err = parseOptionalClock("start_time", req.StartTime); err != nil {
		return nil, err
	}
	if p.EndTime, err = parseOptionalClock("end_time", req.EndTime); err != nil {
		return nil, err
	}

	if req.Recurrence == nil {
		ev, err := model.NewSingleEvent(model.SingleParams{Params: p})
		if err != nil {
			return nil, err
		}
		return ev, nil
	}

	rp := model.RecurringParams{Params: p, RepeatCount: req.Recurrence.Count}
	if rp.RecurrenceDays, err = parseWeekdays(req.Recurrence.Days); err != nil {
		return nil, err
	}
	if req.Recurrence.Until != nil {
		until, err := parseDate("until", *req.Recurrence.Until)
		if err != nil {
			return nil, err
		}
		rp.RecurrenceEndDate = &until
	}
	ev, err := model.NewRecurringEvent(rp)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// patchRequest is the body of PATCH .../events/{id}. Absent fields are
// left untouched.
type patchRequest struct {
	Subject       *string        `json:"subject,omitempty"`
	StartDate     *string        `json:"start_date,omitempty"`
	StartTime     *string        `json:"start_time,omitempty"`
	EndDate       *string        `json:"end_date,omitempty"`
	EndTime       *string        `json:"end_time,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Location      *string        `json:"location,omitempty"`
	Private       *bool          `json:"private,omitempty"`
	AllowConflict *bool          `json:"allow_conflict,omitempty"`
	Recurrence    *recurrenceDTO `json:"recurrence,omitempty"`
}

func (req patchRequest) patch() (model.Patch, error) {
	p := model.Patch{
		Subject:       req.Subject,
		Description:   req.Description,
		Location:      req.Location,
		AllowConflict: req.AllowConflict,
	}
	if req.Private != nil {
		v := model.Public
		if *req.Private {
			v = model.Private
		}
		p.Visibility = &v
	}

	var err error
	if req.StartDate != nil {
		d, err := parseDate("start_date", *req.StartDate)
		if err != nil {
			return p, err
		}
		p.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return p, err
		}
		p.EndDate = &d
	}
	if p.StartTime, err = parseOptionalClock("start_time", req.StartTime); err != nil {
		return p, err
	}
	if p.EndTime, err = parseOptionalClock("end_time", req.EndTime); err != nil {
		return p, err
	}

	if rec := req.Recurrence; rec != nil {
		if rec.Days != nil {
			if p.RecurrenceDays, err = parseWeekdays(rec.Days); err != nil {
				return p, err
			}
		}
		p.RepeatCount = rec.Count
		if rec.Until != nil {
			d, err := parseDate("until", *rec.Until)
			if err != nil {
				return p, err
			}
			p.RecurrenceEndDate = &d
		}
	}
	return p, nil
}

func parseDate(field, s string) (model.Date, error) {
	d, err := model.ParseDate(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return model.Date{}, badRequest("%s: want YYYY-MM-DD, got %q", field, s)
	}
	return d, nil
}

func parseClock(field, s string) (model.TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == endOfDayClock {
		return model.EndOfDay, nil
	}
	t, err := model.ParseTimeOfDay(clockLayout, s)
	if err != nil {
		return 0, badRequest("%s: want HH:MM, got %q", field, s)
	}
	return t, nil
}

func parseOptionalClock(field string, s *string) (*model.TimeOfDay, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseClock(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatClock(t model.TimeOfDay) string {
	if t == model.EndOfDay {
		return endOfDayClock
	}
	return t.Format(clockLayout)
}

var weekdayNames = map[string]time.Weekday{
	"SU": time.Sunday, "SUNDAY": time.Sunday,
	"MO": time.Monday, "MONDAY": time.Monday,
	"TU": time.Tuesday, "TUESDAY": time.Tuesday,
	"WE": time.Wednesday, "WEDNESDAY": time.Wednesday,
	"TH": time.Thursday, "THURSDAY": time.Thursday,
	"FR": time.Friday, "FRIDAY": time.Friday,
	"SA": time.Saturday, "SATURDAY": time.Saturday,
}

// parseWeekdays accepts two-letter codes (MO) or full English names in
// any case.
func parseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		wd, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(n))]
		if !ok {
			return nil, badRequest("unknown weekday %q", n)
		}
		out = append(out, wd)
	}
	return out, nil
}
