package store

import (
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"eventcal/internal/calendar"
	"eventcal/internal/model"
)

const sqliteSchema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE series (
	id             TEXT PRIMARY KEY,
	subject        TEXT NOT NULL,
	start_date     TEXT NOT NULL,
	start_time     INTEGER NOT NULL,
	end_time       INTEGER NOT NULL,
	description    TEXT NOT NULL,
	location       TEXT NOT NULL,
	private        INTEGER NOT NULL,
	allow_conflict INTEGER,
	days           TEXT NOT NULL,
	repeat_count   INTEGER,
	until          TEXT
);
CREATE TABLE events (
	id             TEXT PRIMARY KEY,
	subject        TEXT NOT NULL,
	start_date     TEXT NOT NULL,
	start_time     INTEGER NOT NULL,
	end_date       TEXT NOT NULL,
	end_time       INTEGER NOT NULL,
	description    TEXT NOT NULL,
	location       TEXT NOT NULL,
	private        INTEGER NOT NULL,
	allow_conflict INTEGER
);
`

const sqliteDate = "2006-01-02"

// writeSQLite creates a database at path holding cal. A series that still
// follows its rule is stored once with the rule; the occurrences of a split
// series are stored as standalone events, like single events.
func writeSQLite(cal *calendar.Calendar, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('allow_conflict', ?)`,
		strconv.FormatBool(cal.AllowConflict())); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	stored := make(map[string]bool)
	series := cal.RecurringEvents()
	for _, r := range series {
		if len(r.Leaves()) == 0 || !r.FollowsRule() {
			continue
		}
		var count any
		if n, ok := r.RepeatCount(); ok {
			count = n
		}
		var until any
		if d, ok := r.RecurrenceEndDate(); ok {
			until = d.String()
		}
		if _, err := tx.Exec(`
			INSERT INTO series (id, subject, start_date, start_time, end_time, description,
				location, private, allow_conflict, days, repeat_count, until)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID(), r.Subject(), r.StartDate().String(), int64(r.StartTime()), int64(r.EndTime()),
			r.Description(), r.Location(), r.Visibility() == model.Private, allowColumn(r),
			formatDays(r.RecurrenceDays()), count, until); err != nil {
			return fmt.Errorf("save series %s: %w", r.ID(), err)
		}
		for _, leaf := range r.Leaves() {
			stored[leaf.ID()] = true
		}
	}

	for _, e := range cal.Events() {
		if stored[e.ID()] {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO events (id, subject, start_date, start_time, end_date, end_time,
				description, location, private, allow_conflict)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID(), e.Subject(), e.StartDate().String(), int64(e.StartTime()), e.EndDate().String(),
			int64(e.EndTime()), e.Description(), e.Location(), e.Visibility() == model.Private,
			allowColumn(e)); err != nil {
			return fmt.Errorf("save event %s: %w", e.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return db.Close()
}

// readSQLite rebuilds a calendar from a database written by writeSQLite.
// Series are created before standalone events.
func readSQLite(path, title string, opts []calendar.Option) (*calendar.Calendar, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cal := calendar.New(title, opts...)

	var allow string
	switch err := db.QueryRow(`SELECT value FROM meta WHERE key = 'allow_conflict'`).Scan(&allow); err {
	case nil:
		v, perr := strconv.ParseBool(allow)
		if perr != nil {
			return nil, fmt.Errorf("meta allow_conflict: %w", perr)
		}
		cal.SetAllowConflict(v)
	case sql.ErrNoRows:
	default:
		return nil, fmt.Errorf("load meta: %w", err)
	}

	series, err := loadSeries(db)
	if err != nil {
		return nil, err
	}
	singles, err := loadEvents(db)
	if err != nil {
		return nil, err
	}

	for _, r := range series {
		if err := cal.CreateEvent(r); err != nil {
			return nil, fmt.Errorf("series %s: %w", r.ID(), err)
		}
	}
	for _, e := range singles {
		if err := cal.CreateEvent(e); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID(), err)
		}
	}
	return cal, nil
}

func loadSeries(db *sql.DB) ([]*model.RecurringEvent, error) {
	rows, err := db.Query(`
		SELECT id, subject, start_date, start_time, end_time, description, location,
			private, allow_conflict, days, repeat_count, until
		FROM series
		ORDER BY start_date, start_time, subject, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	defer rows.Close()

	var out []*model.RecurringEvent
	for rows.Next() {
		var (
			p          model.RecurringParams
			startDate  string
			start, end int64
			private    bool
			allow      sql.NullBool
			days       string
			count      sql.NullInt64
			until      sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Subject, &startDate, &start, &end, &p.Description, &p.Location,
			&private, &allow, &days, &count, &until); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}

		if p.StartDate, err = model.ParseDate(sqliteDate, startDate); err != nil {
			return nil, fmt.Errorf("series %s: %w", p.ID, err)
		}
		p.EndDate = p.StartDate
		p.StartTime = model.Ptr(model.TimeOfDay(start))
		p.EndTime = model.Ptr(model.TimeOfDay(end))
		fillCommon(&p.Params, private, allow)

		if p.RecurrenceDays, err = parseDays(days); err != nil {
			return nil, fmt.Errorf("series %s: %w", p.ID, err)
		}
		if count.Valid {
			p.RepeatCount = model.Ptr(int(count.Int64))
		}
		if until.Valid {
			d, err := model.ParseDate(sqliteDate, until.String)
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", p.ID, err)
			}
			p.RecurrenceEndDate = &d
		}

		r, err := model.NewRecurringEvent(p)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", p.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series: %w", err)
	}
	return out, nil
}

func loadEvents(db *sql.DB) ([]*model.SingleEvent, error) {
	rows, err := db.Query(`
		SELECT id, subject, start_date, start_time, end_date, end_time, description,
			location, private, allow_conflict
		FROM events
		ORDER BY start_date, start_time, subject, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var out []*model.SingleEvent
	for rows.Next() {
		var (
			p                  model.Params
			startDate, endDate string
			start, end         int64
			private            bool
			allow              sql.NullBool
		)
		if err := rows.Scan(&p.ID, &p.Subject, &startDate, &start, &endDate, &end, &p.Description,
			&p.Location, &private, &allow); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if p.StartDate, err = model.ParseDate(sqliteDate, startDate); err != nil {
			return nil, fmt.Errorf("event %s: %w", p.ID, err)
		}
		if p.EndDate, err = model.ParseDate(sqliteDate, endDate); err != nil {
			return nil, fmt.Errorf("event %s: %w", p.ID, err)
		}
		p.StartTime = model.Ptr(model.TimeOfDay(start))
		p.EndTime = model.Ptr(model.TimeOfDay(end))
		fillCommon(&p, private, allow)

		e, err := model.NewSingleEvent(model.SingleParams{Params: p})
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", p.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func fillCommon(p *model.Params, private bool, allow sql.NullBool) {
	if private {
		p.Visibility = model.Private
	}
	if allow.Valid {
		p.AllowConflict = model.Ptr(allow.Bool)
	}
}

// allowColumn is NULL for an event that never had a flag.
func allowColumn(ev model.Event) any {
	if !ev.AllowConflictSet() {
		return nil
	}
	return ev.AllowConflict()
}

// formatDays writes weekdays as Sunday-based numbers, e.g. "1,3".
func formatDays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func parseDays(s string) ([]time.Weekday, error) {
	var out []time.Weekday
	for part := range strings.SplitSeq(s, ",") {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < int(time.Sunday) || n > int(time.Saturday) {
			return nil, fmt.Errorf("bad weekday %q", part)
		}
		if !slices.Contains(out, time.Weekday(n)) {
			out = append(out, time.Weekday(n))
		}
	}
	return out, nil
}
