package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"eventcal/internal/calendar"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/metrics"
	"eventcal/internal/model"
)

// Server exposes a set of calendars over a JSON API. Calendars are not
// safe for concurrent use, so every handler holds mu while it touches
// them.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	metrics *metrics.Recorder

	mu        sync.Mutex
	calendars map[string]*calendar.Calendar
	// dirty marks calendars changed since the last successful save.
	dirty map[string]bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics counts calendar changes and rejected requests on m and
// serves its readings at /api/metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer constructs a Server over cals. Calendars with the same title
// collapse to the first one.
func NewServer(cfg *config.Config, cals []*calendar.Calendar, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		calendars: make(map[string]*calendar.Calendar, len(cals)),
		dirty:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, cal := range cals {
		if cal == nil {
			continue
		}
		if _, ok := s.calendars[cal.Title()]; ok {
			appLog.Info("web: ignoring calendar with duplicate title", "title", cal.Title())
			continue
		}
		s.track(cal)
	}
	s.registerRoutes()
	return s
}

// track registers cal and a listener that marks it dirty. Callers hold
// mu, or own s exclusively.
func (s *Server) track(cal *calendar.Calendar) {
	title := cal.Title()
	s.calendars[title] = cal
	mark := func(_ model.Event) { s.dirty[title] = true }
	cal.AddListener(&calendar.ListenerFuncs{Added: mark, Modified: mark})
	cal.AddListener(s.metrics.Listener(title))
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Calendars returns the served calendars sorted by title.
func (s *Server) Calendars() []*calendar.Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *Server) sorted() []*calendar.Calendar {
	out := make([]*calendar.Calendar, 0, len(s.calendars))
	for _, cal := range s.calendars {
		out = append(out, cal)
	}
	slices.SortFunc(out, func(a, b *calendar.Calendar) int {
		return strings.Compare(a.Title(), b.Title())
	})
	return out
}

// SaveDirty calls save with the calendars changed since the last
// successful call, holding the lock so no handler runs meanwhile. When
// save fails the calendars stay dirty. With all set, every calendar is
// passed regardless of its state.
func (s *Server) SaveDirty(all bool, save func([]*calendar.Calendar) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*calendar.Calendar
	for _, cal := range s.sorted() {
		if all || s.dirty[cal.Title()] {
			pending = append(pending, cal)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if err := save(pending); err != nil {
		return err
	}
	for _, cal := range pending {
		delete(s.dirty, cal.Title())
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/calendars", s.handleListCalendars)
	s.mux.HandleFunc("POST /api/calendars", s.handleCreateCalendar)
	s.mux.HandleFunc("GET /api/calendars/{title}/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/calendars/{title}/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/calendars/{title}/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PATCH /api/calendars/{title}/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/calendars/{title}/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /api/calendars/{title}/busy", s.handleBusy)
	s.mux.HandleFunc("GET /api/calendars/{title}/export", s.handleExport)
	s.mux.HandleFunc("POST /api/calendars/{title}/import", s.handleImport)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	points, err := s.metrics.Snapshot(r.Context())
	if err != nil {
		appLog.Error("web: metrics collection failed", err)
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	if points == nil {
		points = []metrics.Point{}
	}
	writeJSON(w, http.StatusOK, points)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeDomainError maps calendar and model errors onto HTTP statuses and
// counts the rejection. Conflicts are checked first since a rejected
// update also carries ErrInvalidUpdate.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, calendar.ErrDuplicate), errors.Is(err, calendar.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, calendar.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidEvent),
		errors.Is(err, calendar.ErrInvalidUpdate),
		errors.Is(err, calendar.ErrNilEvent):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		appLog.Error("web: unexpected error", err, "path", r.URL.Path)
	}
	s.metrics.RecordRejected(r.Context(), r.PathValue("title"), r.Pattern, err)
	writeError(w, status, err.Error())
}
