// Package gcsv reads and writes calendars in the CSV layout accepted by
// Google Calendar imports.
package gcsv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"eventcal/internal/calendar"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const (
	DateLayout = "01/02/2006"
	TimeLayout = "03:04 PM"

	columns = 9
)

var header = []string{
	"Subject", "Start Date", "Start Time", "End Date", "End Time",
	"All Day Event", "Description", "Location", "Private",
}

// Export writes every leaf of cal, ordered by start date, start time and
// subject. Series are flattened into their occurrences.
func Export(cal *calendar.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("gcsv: write header: %w", err)
	}
	for _, ev := range cal.Events() {
		if err := w.Write(row(ev)); err != nil {
			return nil, fmt.Errorf("gcsv: write %q: %w", ev.Subject(), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("gcsv: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFile writes Export's output to path.
func ExportFile(cal *calendar.Calendar, path string) error {
	data, err := Export(cal)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("gcsv: write %s: %w", path, err)
	}
	return nil
}

func row(ev *model.SingleEvent) []string {
	allDay := ev.AllDay()
	startTime, endTime := "", ""
	if !allDay {
		startTime = ev.StartTime().Format(TimeLayout)
		endTime = ev.EndTime().Format(TimeLayout)
	}
	return []string{
		ev.Subject(),
		ev.StartDate().Time().Format(DateLayout),
		startTime,
		ev.EndDate().Time().Format(DateLayout),
		endTime,
		boolCell(allDay),
		ev.Description(),
		ev.Location(),
		boolCell(ev.Visibility() == model.Private),
	}
}

func boolCell(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Import reads rows from r and creates one single event per row in cal.
// The header row is skipped, as are rows with fewer than nine columns.
// Blank or unparsable dates and times are treated as absent. The first row
// cal rejects aborts the import; earlier rows stay imported.
func Import(cal *calendar.Calendar, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("gcsv: read header: %w", err)
	}

	created := 0
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return created, fmt.Errorf("gcsv: row %d: %w", line, err)
		}
		if len(rec) < columns {
			appLog.Debug("gcsv: skipping short row", "row", line, "columns", len(rec))
			continue
		}

		ev, err := model.NewSingleEvent(model.SingleParams{Params: params(rec)})
		if err == nil {
			err = cal.CreateEvent(ev)
		}
		if err != nil {
			return created, fmt.Errorf("gcsv: row %d: %w", line, err)
		}
		created++
	}
	return created, nil
}

// ImportFile opens path and runs Import on it.
func ImportFile(cal *calendar.Calendar, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("gcsv: open %s: %w", path, err)
	}
	defer f.Close()
	return Import(cal, f)
}

func params(rec []string) model.Params {
	cell := func(i int) string { return strings.TrimSpace(rec[i]) }

	p := model.Params{
		Subject:     cell(0),
		StartDate:   parseDate(cell(1)),
		EndDate:     parseDate(cell(3)),
		Description: rec[6],
		Location:    rec[7],
		Visibility:  model.Public,
	}
	if strings.EqualFold(cell(8), "True") {
		p.Visibility = model.Private
	}
	if strings.EqualFold(cell(5), "True") {
		start, end := model.StartOfDay, model.EndOfDay
		p.StartTime, p.EndTime = &start, &end
		return p
	}
	p.StartTime = parseTime(cell(2))
	p.EndTime = parseTime(cell(4))
	return p
}

func parseDate(s string) model.Date {
	if s == "" {
		return model.Date{}
	}
	d, err := model.ParseDate(DateLayout, s)
	if err != nil {
		return model.Date{}
	}
	return d
}

func parseTime(s string) *model.TimeOfDay {
	if s == "" {
		return nil
	}
	t, err := model.ParseTimeOfDay(TimeLayout, strings.ToUpper(s))
	if err != nil {
		return nil
	}
	return &t
}
