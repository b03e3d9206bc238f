package device

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a class of rig device.
type Kind string

// Device kinds.
const (
	KindValve  Kind = "valve"
	KindPump   Kind = "pump"
	KindSensor Kind = "sensor"
)

// AllKinds returns every supported kind, in display order.
func AllKinds() []Kind {
	return []Kind{KindValve, KindPump, KindSensor}
}

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindValve, KindPump, KindSensor:
		return true
	}
	return false
}

// States returns the closed state set for k, IDLE first.
// Unknown kinds return nil.
func (k Kind) States() []State {
	t, ok := tables[k]
	if !ok {
		return nil
	}
	out := make([]State, len(t.states))
	copy(out, t.states)
	return out
}

// State is a discrete operating state. The string value is the status
// label written to the ledgers.
type State string

// States across all kinds.
const (
	StateIdle    State = "IDLE"
	StateOpening State = "OPENING"
	StateOpen    State = "OPEN"
	StateClosing State = "CLOSING"
	StateClosed  State = "CLOSED"
	StatePriming State = "PRIMING"
	StateRunning State = "RUNNING"
	StateActive  State = "ACTIVE"
)

func (s State) String() string { return string(s) }

// ParseState converts a case-insensitive state name into a State that
// belongs to kind k.
func ParseState(k Kind, s string) (State, error) {
	t, ok := tables[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !t.has(st) {
		return "", fmt.Errorf("%w: %q for %s", ErrInvalidState, s, k)
	}
	return st, nil
}

// Outcome classifies the result of a transition request.
type Outcome string

// Request outcomes.
const (
	// OutcomeApplied means the machine moved to the requested state.
	OutcomeApplied Outcome = "applied"

	// OutcomeUnchanged means the machine was already in the requested state.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeRejected means the table has no edge from the current state
	// to the requested one.
	OutcomeRejected Outcome = "rejected"
)

// Transition records one transition request and what came of it.
type Transition struct {
	Device  string    `json:"device"`
	Kind    Kind      `json:"kind"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Outcome Outcome   `json:"outcome"`
	At      time.Time `json:"at"`
}

// Changed reports whether the machine's state moved.
func (t Transition) Changed() bool {
	return t.Outcome == OutcomeApplied
}

// Current returns the state the machine is in after the request.
func (t Transition) Current() State {
	if t.Changed() {
		return t.To
	}
	return t.From
}
