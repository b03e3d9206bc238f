package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimeFormat is the layout of the Time column.
const TimeFormat = "2006-01-02 15:04:05"

// File permission constants.
const (
	dirPermissions  = 0o750
	filePermissions = 0o644
)

// Header is the column header written to every new ledger file.
var Header = []string{"Time", "Name", "Status", "Notes"}

// Entry is one ledger row. Entries are never edited once written.
type Entry struct {
	Time   time.Time `json:"time"`
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Notes  string    `json:"notes,omitempty"`
}

func (e Entry) record() []string {
	return []string{e.Time.Format(TimeFormat), e.Name, e.Status, e.Notes}
}

// Paths locates the ledgers used by the rig. An empty path disables
// that ledger.
type Paths struct {
	System string
	Valve  string
	Pump   string
	Sensor string
}

// Ledger appends rows to CSV ledger files.
//
// Every file has its own mutex. Append and the read-decide-append sequence
// of RecordIfChanged both run under it, so concurrent callers can never
// produce two adjacent rows with the same status for one name through
// RecordIfChanged.
//
// All methods are safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used to stamp rows.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// lockFor returns the mutex guarding path, creating it on first use.
func (l *Ledger) lockFor(path string) *sync.Mutex {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	mu, ok := l.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[key] = mu
	}
	return mu
}

// Append writes e as a new row at the end of the file at path. The file
// and its header are created when missing or empty. A zero e.Time is
// stamped with the ledger clock.
func (l *Ledger) Append(path string, e Entry) error {
	if path == "" {
		return ErrNoPath
	}
	if e.Time.IsZero() {
		e.Time = l.now()
	}

	mu := l.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	return appendRow(path, e)
}

// RecordIfChanged appends a row for name only when status differs from
// the most recent status recorded for name in the file at path. A missing
// or empty file counts as no prior status.
//
// Returns:
//   - bool: true if a row was appended
//   - error: wrapping ErrRead or ErrWrite on I/O failure
func (l *Ledger) RecordIfChanged(path, name, status, notes string) (bool, error) {
	if path == "" {
		return false, ErrNoPath
	}

	mu := l.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	last, found, err := lastFor(path, name)
	if err != nil {
		return false, err
	}
	if found && last.Status == status {
		return false, nil
	}

	entry := Entry{Time: l.now(), Name: name, Status: status, Notes: notes}
	if err := appendRow(path, entry); err != nil {
		return false, err
	}
	return true, nil
}

// Entries returns every row in the file at path, oldest first. A missing
// file yields an empty slice.
func (l *Ledger) Entries(path string) ([]Entry, error) {
	if path == "" {
		return nil, ErrNoPath
	}

	mu := l.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	return readEntries(path)
}

// Last returns the most recent row for name in the file at path.
func (l *Ledger) Last(path, name string) (Entry, bool, error) {
	if path == "" {
		return Entry{}, false, ErrNoPath
	}

	mu := l.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	return lastFor(path, name)
}

// appendRow opens path in append mode and writes one row, preceded by the
// header when the file is empty. Callers hold the path lock.
func appendRow(path string, e Entry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return fmt.Errorf("%w: creating directory: %w", ErrWrite, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrWrite, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: stat %s: %w", ErrWrite, path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			f.Close() //nolint:errcheck // already failing
			return fmt.Errorf("%w: writing header: %w", ErrWrite, err)
		}
	}
	if err := w.Write(e.record()); err != nil {
		f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: writing row: %w", ErrWrite, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: flushing row: %w", ErrWrite, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrWrite, path, err)
	}
	return nil
}

// lastFor scans the ledger backward for the newest row whose Name matches.
func lastFor(path, name string) (Entry, bool, error) {
	entries, err := readEntries(path)
	if err != nil {
		return Entry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Name == name {
			return entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}

// columns maps header names to record positions.
type columns struct {
	time, name, status, notes int
}

// defaultColumns is the layout written by this package.
var defaultColumns = columns{time: 0, name: 1, status: 2, notes: 3}

// readEntries parses the ledger at path. Columns are located by header
// name so files written with a different column order still read
// correctly. Rows too short to carry a name and status are skipped.
func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: opening %s: %w", ErrRead, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	cols := defaultColumns
	entries := []Entry{}
	first := true

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %w", ErrRead, path, err)
		}

		if first {
			first = false
			if c, ok := parseHeader(rec); ok {
				cols = c
				continue
			}
		}

		entry, ok := cols.entry(rec)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// parseHeader recognises a header row. It reports false for a data row.
func parseHeader(rec []string) (columns, bool) {
	c := columns{time: -1, name: -1, status: -1, notes: -1}
	for i, field := range rec {
		switch field {
		case "Time":
			c.time = i
		case "Name":
			c.name = i
		case "Status":
			c.status = i
		case "Notes":
			c.notes = i
		}
	}
	if c.name < 0 || c.status < 0 {
		return defaultColumns, false
	}
	return c, true
}

func (c columns) entry(rec []string) (Entry, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	if c.name >= len(rec) || c.status >= len(rec) {
		return Entry{}, false
	}

	e := Entry{
		Name:   field(c.name),
		Status: field(c.status),
		Notes:  field(c.notes),
	}
	if ts, err := time.ParseInLocation(TimeFormat, field(c.time), time.Local); err == nil {
		e.Time = ts
	}
	return e, true
}
