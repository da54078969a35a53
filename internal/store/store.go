// Package store persists a set of calendars as one file per calendar in a
// directory.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"eventcal/internal/calendar"
	"eventcal/internal/gcsv"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
)

// Format selects the file codec.
type Format string

const (
	FormatCSV Format = "csv"
	FormatICS Format = "ics"
	// FormatSQLite keeps series and allow-conflict flags that the CSV
	// layout cannot carry.
	FormatSQLite Format = "sqlite"
)

var formats = []Format{FormatCSV, FormatICS, FormatSQLite}

// ParseFormat accepts "csv", "ics" or "sqlite" in any case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(formats, f) {
		return "", fmt.Errorf("store: unknown format %q", s)
	}
	return f, nil
}

func (f Format) ext() string { return "." + string(f) }

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-_]`)
	underscores = regexp.MustCompile(`_+`)
)

// SafeName maps a calendar title to a file name stem.
func SafeName(title string) string {
	return underscores.ReplaceAllString(unsafeChars.ReplaceAllString(title, "_"), "_")
}

// SaveAll writes every titled calendar to dir, creating dir if needed.
// Untitled calendars are skipped. A failure on one calendar does not stop
// the others; all failures are returned joined.
func SaveAll(cals []*calendar.Calendar, dir string, format Format) error {
	if len(cals) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}

	var errs []error
	for _, cal := range cals {
		if cal == nil || cal.Title() == "" {
			continue
		}
		if _, err := Save(cal, dir, format); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Save writes one calendar into dir and returns the file path. Files the
// calendar left in other formats are removed once the write succeeded.
func Save(cal *calendar.Calendar, dir string, format Format) (string, error) {
	stem := SafeName(cal.Title())
	path := filepath.Join(dir, stem+format.ext())

	var err error
	switch format {
	case FormatCSV:
		var data []byte
		if data, err = gcsv.Export(cal); err == nil {
			err = writeAtomic(path, data)
		}
	case FormatICS:
		err = writeAtomic(path, []byte(ics.Export(cal)))
	case FormatSQLite:
		err = atomicReplace(path, func(tmpName string) error {
			return writeSQLite(cal, tmpName)
		})
	default:
		return "", fmt.Errorf("store: unknown format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("store: save %q: %w", cal.Title(), err)
	}
	appLog.Debug("store: calendar saved", "title", cal.Title(), "path", path, "events", cal.Len())
	removeStale(dir, stem, format)
	return path, nil
}

func removeStale(dir, stem string, keep Format) {
	for _, f := range formats {
		if f == keep {
			continue
		}
		stale := filepath.Join(dir, stem+f.ext())
		err := os.Remove(stale)
		switch {
		case err == nil:
			appLog.Info("store: removed stale calendar file", "path", stale)
		case !errors.Is(err, os.ErrNotExist):
			appLog.Error("store: failed to remove stale calendar file", err, "path", stale)
		}
	}
}

// candidate is one file that may hold a calendar.
type candidate struct {
	name    string
	format  Format
	modTime time.Time
}

// RestoreAll loads every *.csv, *.ics and *.sqlite file in dir as a
// calendar titled after the file name. When several files share a title
// the most recently modified one that imports wins. Files that fail to
// import are logged and skipped. The result is sorted by title.
func RestoreAll(dir string, opts ...calendar.Option) ([]*calendar.Calendar, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("store: invalid input directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: invalid input directory %s: not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", dir, err)
	}

	byTitle := make(map[string][]candidate)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		format := Format(strings.TrimPrefix(ext, "."))
		if !slices.Contains(formats, format) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			appLog.Error("store: failed to stat calendar file", err, "file", name)
			continue
		}
		title := strings.TrimSuffix(name, filepath.Ext(name))
		byTitle[title] = append(byTitle[title], candidate{name: name, format: format, modTime: info.ModTime()})
	}

	var out []*calendar.Calendar
	for _, title := range slices.Sorted(maps.Keys(byTitle)) {
		files := byTitle[title]
		slices.SortStableFunc(files, func(a, b candidate) int {
			return b.modTime.Compare(a.modTime)
		})
		for _, f := range files {
			cal, err := restore(filepath.Join(dir, f.name), title, f.format, opts)
			if err != nil {
				appLog.Error("store: failed to import calendar file", err, "file", f.name)
				continue
			}
			if len(files) > 1 {
				appLog.Info("store: skipping older calendar files", "title", title, "used", f.name, "found", len(files))
			}
			out = append(out, cal)
			break
		}
	}

	appLog.Info("store: calendars restored", "dir", dir, "count", len(out))
	return out, nil
}

func restore(path, title string, format Format, opts []calendar.Option) (*calendar.Calendar, error) {
	if format == FormatSQLite {
		return readSQLite(path, title, opts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cal := calendar.New(title, opts...)
	switch format {
	case FormatCSV:
		_, err = gcsv.Import(cal, bytes.NewReader(data))
	case FormatICS:
		_, err = ics.Import(cal, bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	return cal, nil
}

// writeAtomic writes data to path through atomicReplace.
func writeAtomic(path string, data []byte) error {
	return atomicReplace(path, func(tmpName string) error {
		f, err := os.OpenFile(tmpName, os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// atomicReplace creates an empty temp file next to path, lets fill
// populate it by name, then renames it over path with 0600 permissions.
func atomicReplace(path string, fill func(tmpName string) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".eventcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fill(tmpName); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
