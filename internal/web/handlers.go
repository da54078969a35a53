package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"eventcal/internal/calendar"
	"eventcal/internal/gcsv"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// maxBody caps request bodies, imports included.
const maxBody = 4 << 20

type calendarDTO struct {
	Title         string `json:"title"`
	AllowConflict bool   `json:"allow_conflict"`
	Events        int    `json:"events"`
	Series        int    `json:"series"`
	Unsaved       bool   `json:"unsaved"`
}

type createCalendarRequest struct {
	Title         string `json:"title"`
	AllowConflict *bool  `json:"allow_conflict,omitempty"`
}

type createdResponse struct {
	ID     string     `json:"id"`
	Events []eventDTO `json:"events"`
}

type busyResponse struct {
	Date string `json:"date"`
	Time string `json:"time"`
	Busy bool   `json:"busy"`
}

func (s *Server) handleListCalendars(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]calendarDTO, 0, len(s.calendars))
	for _, cal := range s.sorted() {
		out = append(out, calendarDTO{
			Title:         cal.Title(),
			AllowConflict: cal.AllowConflict(),
			Events:        cal.Len(),
			Series:        len(cal.RecurringEvents()),
			Unsaved:       s.dirty[cal.Title()],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request) {
	var req createCalendarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendars[req.Title]; ok {
		writeError(w, http.StatusConflict, "calendar already exists")
		return
	}
	allow := s.cfg.AllowConflict
	if req.AllowConflict != nil {
		allow = *req.AllowConflict
	}
	cal := calendar.New(req.Title, calendar.WithAllowConflict(allow))
	s.track(cal)
	s.dirty[cal.Title()] = true

	appLog.Info("web: calendar created", "title", cal.Title(), "allow_conflict", allow)
	writeJSON(w, http.StatusCreated, calendarDTO{Title: cal.Title(), AllowConflict: allow, Unsaved: true})
}

// handleListEvents returns every occurrence, or only those on the given
// ?date= values.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var dates []model.Date
	for _, raw := range r.URL.Query()["date"] {
		d, err := parseDate("date", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		dates = append(dates, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}
	events := cal.Events()
	if len(dates) > 0 {
		events = cal.GetEventByDate(dates...)
	}
	writeJSON(w, http.StatusOK, toDTOs(events))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := req.event()
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := cal.CreateEvent(ev); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: ev.ID(), Events: toDTOs(ev.Leaves())})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ev, ok := cal.Event(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, createdResponse{ID: ev.ID(), Events: toDTOs(ev.Leaves())})
}

// handleUpdateEvent applies a patch. The id may name a series, a single
// event or one occurrence of a series; an occurrence edits its series
// from that occurrence on unless ?effective= says otherwise.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}
	var effective *model.Date
	if raw := r.URL.Query().Get("effective"); raw != "" {
		d, err := parseDate("effective", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		effective = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}
	target, ok := s.resolve(cal, r.PathValue("id"), &effective)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err := cal.UpdateEvent(target, patch, effective); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createdResponse{ID: target.ID(), Events: toDTOs(target.Leaves())})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ev, ok := cal.Event(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if leaf, isLeaf := ev.(*model.SingleEvent); isLeaf && leaf.PartOfSeries() {
		writeError(w, http.StatusUnprocessableEntity, "occurrence belongs to series "+leaf.ParentID())
		return
	}
	if err := cal.DeleteEvent(ev); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	// Deletes are not reported to listeners.
	s.dirty[cal.Title()] = true
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBusy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDate("date", q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	at, err := parseClock("time", q.Get("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, busyResponse{
		Date: date.String(),
		Time: formatClock(at),
		Busy: cal.IsBusy(date, at),
	})
}

// handleExport writes the calendar as ICS (default) or Google CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}
	switch strings.ToLower(format) {
	case "", "ics":
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		_, _ = io.WriteString(w, ics.Export(cal))
	case "csv":
		data, err := gcsv.Export(cal)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "format must be ics or csv")
	}
}

type importResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// handleImport adds the events of an ICS or CSV body. Events created
// before a rejected one stay in the calendar.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "ics"
	}
	if format != "ics" && format != "csv" {
		writeError(w, http.StatusBadRequest, "format must be ics or csv")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var res importResponse
	if format == "csv" {
		res.Created, err = gcsv.Import(cal, bytes.NewReader(body))
	} else {
		var ir ics.ImportResult
		ir, err = ics.Import(cal, bytes.NewReader(body))
		res = importResponse{Created: ir.Created, Skipped: ir.Skipped}
	}
	if err != nil {
		appLog.Error("web: import failed", err, "calendar", cal.Title(), "created", res.Created)
		s.writeImportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeImportError reports a codec failure. Input the codec could not
// read at all is a bad request; a rejected event maps like any other
// domain error.
func (s *Server) writeImportError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, calendar.ErrDuplicate) || errors.Is(err, calendar.ErrConflict) ||
		errors.Is(err, model.ErrInvalidEvent) {
		s.writeDomainError(w, r, err)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// lookup resolves {title}, writing a 404 when it is unknown. Callers hold mu.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*calendar.Calendar, bool) {
	cal, ok := s.calendars[r.PathValue("title")]
	if !ok {
		writeError(w, http.StatusNotFound, "calendar not found")
	}
	return cal, ok
}

// resolve maps an id onto the event UpdateEvent should see. An occurrence
// of a series resolves to the series, with the occurrence date as the
// effective date when none was given.
func (s *Server) resolve(cal *calendar.Calendar, id string, effective **model.Date) (model.Event, bool) {
	ev, ok := cal.Event(id)
	if !ok {
		return nil, false
	}
	leaf, isLeaf := ev.(*model.SingleEvent)
	if !isLeaf || !leaf.PartOfSeries() {
		return ev, true
	}
	series, ok := cal.Event(leaf.ParentID())
	if !ok {
		return nil, false
	}
	if *effective == nil {
		d := leaf.StartDate()
		*effective = &d
	}
	return series, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// writeRequestError reports a failure to turn a request into an event.
func (s *Server) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeDomainError(w, r, err)
}
