package device

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/robojar-core/internal/ledger"
)

// Logger defines the logging interface used by machines.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LedgerSink is the subset of *ledger.Ledger a machine writes to.
type LedgerSink interface {
	Append(path string, e ledger.Entry) error
	RecordIfChanged(path, name, status, notes string) (bool, error)
}

// Observer is notified after every applied transition. Observers run
// under the machine lock: they must return quickly and must not call
// back into the machine.
type Observer func(Transition)

// Option configures a Machine.
type Option func(*Machine)

// WithLedger sets the ledger sink and the files the machine writes to.
// The kind ledger is picked from paths by the machine's kind; an empty
// path disables that ledger.
func WithLedger(sink LedgerSink, paths ledger.Paths) Option {
	return func(m *Machine) {
		m.sink = sink
		m.systemPath = paths.System
		m.kindPath = kindPath(paths, m.kind)
	}
}

// WithObserver adds an observer for applied transitions.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithLogger sets the machine logger.
func WithLogger(l Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp transitions.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// Machine is the state machine of a single device.
//
// All methods are safe for concurrent use.
type Machine struct {
	name  string
	kind  Kind
	table *Table

	mu    sync.Mutex // held across check, commit and ledger writes
	state State

	sink       LedgerSink
	kindPath   string
	systemPath string

	observers []Observer
	logger    Logger
	now       func() time.Time
}

// NewMachine creates a machine in IDLE and records that initial entry:
// one kind ledger row and a change-only system ledger row.
//
// Parameters:
//   - kind: Device kind, selects the transition table
//   - name: Device name used in ledger rows, e.g. "Valve 1"
//   - opts: Ledger, observer, logger and clock options
//
// Returns:
//   - *Machine: The machine, also returned when only the initial ledger write failed
//   - error: ErrUnknownKind or ErrInvalidName (nil machine), or wrapping ErrLedgerWrite
func NewMachine(kind Kind, name string, opts ...Option) (*Machine, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}

	m := &Machine{
		name:   name,
		kind:   kind,
		table:  table,
		state:  StateIdle,
		logger: noopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m, m.record(StateIdle, m.now())
}

// Name returns the device name.
func (m *Machine) Name() string { return m.name }

// Kind returns the device kind.
func (m *Machine) Kind() Kind { return m.kind }

// Table returns the machine's transition table.
func (m *Machine) Table() *Table { return m.table }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Request asks the machine to move to state to.
//
// Requesting the current state yields OutcomeUnchanged. A target the
// table has no edge to, including states of another kind, yields
// OutcomeRejected. Neither writes to a ledger and neither is an error.
//
// An applied transition commits the new state before the ledgers are
// written. A ledger failure is returned wrapped in ErrLedgerWrite; the
// state is not rolled back.
//
// Parameters:
//   - to: Requested state
//
// Returns:
//   - Transition: What happened, including the previous state
//   - error: nil, or wrapping ErrLedgerWrite
func (m *Machine) Request(to State) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := Transition{
		Device: m.name,
		Kind:   m.kind,
		From:   m.state,
		To:     to,
		At:     m.now(),
	}

	switch {
	case to == m.state:
		tr.Outcome = OutcomeUnchanged
		return tr, nil
	case !m.table.Allowed(m.state, to):
		tr.Outcome = OutcomeRejected
		m.logger.Info("transition rejected", "device", m.name, "from", tr.From, "to", to)
		return tr, nil
	}

	m.state = to
	tr.Outcome = OutcomeApplied
	return tr, m.onTransition(tr)
}

// Poll reports the current state and records it in the system ledger
// when it differs from the last recorded status. The state itself never
// changes.
func (m *Machine) Poll() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sink == nil || m.systemPath == "" {
		return m.state, nil
	}
	if _, err := m.sink.RecordIfChanged(m.systemPath, m.name, m.state.String(), ""); err != nil {
		m.logger.Error("system ledger write failed", "device", m.name, "error", err)
		return m.state, fmt.Errorf("%w: %s: %w", ErrLedgerWrite, m.name, err)
	}
	return m.state, nil
}

// onTransition is the single hook run for every applied transition.
// Callers hold m.mu.
func (m *Machine) onTransition(tr Transition) error {
	m.logger.Debug("transition applied", "device", m.name, "from", tr.From, "to", tr.To)

	err := m.record(tr.To, tr.At)
	for _, o := range m.observers {
		o(tr)
	}
	return err
}

// record writes the kind ledger row and the change-only system ledger
// row for state s. Both writes are attempted even when the first fails.
func (m *Machine) record(s State, at time.Time) error {
	if m.sink == nil {
		return nil
	}

	var errs []error
	if m.kindPath != "" {
		entry := ledger.Entry{Time: at, Name: m.name, Status: s.String()}
		if err := m.sink.Append(m.kindPath, entry); err != nil {
			errs = append(errs, err)
		}
	}
	if m.systemPath != "" {
		if _, err := m.sink.RecordIfChanged(m.systemPath, m.name, s.String(), ""); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	m.logger.Error("ledger write failed", "device", m.name, "status", s, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrLedgerWrite, m.name, err)
}

// kindPath picks the kind ledger for k.
func kindPath(p ledger.Paths, k Kind) string {
	switch k {
	case KindValve:
		return p.Valve
	case KindPump:
		return p.Pump
	case KindSensor:
		return p.Sensor
	}
	return ""
}
