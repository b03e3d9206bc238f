package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fixedClock returns a clock pinned to a known instant.
func fixedClock() func() time.Time {
	ts := time.Date(2026, 1, 13, 9, 30, 0, 0, time.Local)
	return func() time.Time { return ts }
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestAppend_CreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Logs", "ValveLog.csv")
	l := New(WithClock(fixedClock()))

	if err := l.Append(path, Entry{Name: "Valve 1", Status: "OPENING"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	want := "Time,Name,Status,Notes\n2026-01-13 09:30:00,Valve 1,OPENING,\n"
	if got := readFile(t, path); got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
}

func TestAppend_EmptyFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PumpLog.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(WithClock(fixedClock()))
	if err := l.Append(path, Entry{Name: "Main Pump", Status: "IDLE"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if got := readFile(t, path); !strings.HasPrefix(got, "Time,Name,Status,Notes\n") {
		t.Errorf("expected header on empty file, got %q", got)
	}
}

func TestAppend_NeverRewritesExistingRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ValveLog.csv")
	l := New(WithClock(fixedClock()))

	for _, status := range []string{"IDLE", "OPENING", "OPEN", "OPEN"} {
		if err := l.Append(path, Entry{Name: "Valve 2", Status: status}); err != nil {
			t.Fatalf("Append(%s) error = %v", status, err)
		}
	}

	entries, err := l.Entries(path)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4 (kind ledgers keep repeats)", len(entries))
	}
	if entries[0].Status != "IDLE" || entries[3].Status != "OPEN" {
		t.Errorf("rows out of order: %+v", entries)
	}
	if strings.Count(readFile(t, path), "Time,Name,Status,Notes") != 1 {
		t.Error("header written more than once")
	}
}

func TestAppend_KeepsExplicitTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SensorLog.csv")
	l := New(WithClock(fixedClock()))
	ts := time.Date(2025, 12, 29, 12, 0, 0, 0, time.Local)

	if err := l.Append(path, Entry{Time: ts, Name: "Sensor", Status: "ACTIVE", Notes: "bench"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries, _ := l.Entries(path)
	if len(entries) != 1 || !entries[0].Time.Equal(ts) || entries[0].Notes != "bench" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAppend_Errors(t *testing.T) {
	l := New()

	if err := l.Append("", Entry{Name: "x", Status: "y"}); !errors.Is(err, ErrNoPath) {
		t.Errorf("Append(\"\") error = %v, want ErrNoPath", err)
	}

	// A regular file where a directory is expected makes the path unwritable.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := l.Append(filepath.Join(blocker, "SystemLog.csv"), Entry{Name: "x", Status: "y"})
	if !errors.Is(err, ErrWrite) {
		t.Errorf("Append(unwritable) error = %v, want ErrWrite", err)
	}
}

func TestRecordIfChanged_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SystemLog.csv")
	l := New(WithClock(fixedClock()))

	first, err := l.RecordIfChanged(path, "Valve 1", "OPEN", "")
	if err != nil || !first {
		t.Fatalf("first RecordIfChanged() = %v, %v; want true, nil", first, err)
	}
	second, err := l.RecordIfChanged(path, "Valve 1", "OPEN", "")
	if err != nil || second {
		t.Fatalf("second RecordIfChanged() = %v, %v; want false, nil", second, err)
	}

	entries, _ := l.Entries(path)
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestRecordIfChanged_PerName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SystemLog.csv")
	l := New(WithClock(fixedClock()))

	steps := []struct {
		name, status string
		want         bool
	}{
		{"Valve 1", "IDLE", true},
		{"Valve 2", "IDLE", true},  // other name, no prior row
		{"Valve 1", "IDLE", false}, // unchanged despite Valve 2 row in between
		{"Valve 1", "OPEN", true},
		{"Valve 2", "OPEN", true},
		{"Valve 1", "IDLE", true}, // back to an older status is still a change
	}

	for i, s := range steps {
		got, err := l.RecordIfChanged(path, s.name, s.status, "")
		if err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
		if got != s.want {
			t.Errorf("step %d RecordIfChanged(%s, %s) = %v, want %v", i, s.name, s.status, got, s.want)
		}
	}

	last, ok, err := l.Last(path, "Valve 1")
	if err != nil || !ok || last.Status != "IDLE" {
		t.Errorf("Last(Valve 1) = %+v, %v, %v", last, ok, err)
	}
	if _, ok, _ := l.Last(path, "Main Pump"); ok {
		t.Error("Last(Main Pump) found a row that was never written")
	}
}

func TestRecordIfChanged_ReadsForeignColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SystemLog.csv")
	content := "Name,Status,Time,Notes\nMain Pump,RUNNING,2026-01-01 00:00:00,\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(WithClock(fixedClock()))
	changed, err := l.RecordIfChanged(path, "Main Pump", "RUNNING", "")
	if err != nil {
		t.Fatalf("RecordIfChanged() error = %v", err)
	}
	if changed {
		t.Error("RecordIfChanged() = true, want false for an unchanged status")
	}
}

func TestRecordIfChanged_SkipsShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SystemLog.csv")
	content := "Time,Name,Status,Notes\n2026-01-01 00:00:00,Valve 3,CLOSED,\ngarbage\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(WithClock(fixedClock()))
	changed, err := l.RecordIfChanged(path, "Valve 3", "CLOSED", "")
	if err != nil || changed {
		t.Errorf("RecordIfChanged() = %v, %v; want false, nil", changed, err)
	}
}

func TestRecordIfChanged_EmptyPath(t *testing.T) {
	l := New()
	if _, err := l.RecordIfChanged("", "Valve 1", "OPEN", ""); !errors.Is(err, ErrNoPath) {
		t.Errorf("error = %v, want ErrNoPath", err)
	}
}

func TestEntries_MissingFile(t *testing.T) {
	l := New()
	entries, err := l.Entries(filepath.Join(t.TempDir(), "nope.csv"))
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

// TestRecordIfChanged_Concurrent checks the dedup law holds when many
// goroutines race to record the same status for one name.
func TestRecordIfChanged_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SystemLog.csv")
	l := New()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	appended := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.RecordIfChanged(path, "Main Pump", "PRIMING", "")
			if err != nil {
				t.Errorf("RecordIfChanged() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				appended++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if appended != 1 {
		t.Errorf("appended = %d, want exactly 1", appended)
	}
	entries, _ := l.Entries(path)
	if len(entries) != 1 {
		t.Errorf("rows = %d, want 1", len(entries))
	}
}

// TestRecordIfChanged_NoAdjacentDuplicates interleaves writers flipping
// between two statuses and then verifies the file itself.
func TestRecordIfChanged_NoAdjacentDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SystemLog.csv")
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		status := "OPEN"
		if i%3 == 0 {
			status = "CLOSED"
		}
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			if _, err := l.RecordIfChanged(path, "Valve 1", s, ""); err != nil {
				t.Errorf("RecordIfChanged() error = %v", err)
			}
		}(status)
	}
	wg.Wait()

	entries, err := l.Entries(path)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Status == entries[i-1].Status {
			t.Fatalf("rows %d and %d both carry %q", i-1, i, entries[i].Status)
		}
	}
}
