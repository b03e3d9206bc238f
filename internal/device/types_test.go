package device

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"valve", KindValve, false},
		{"Pump", KindPump, false},
		{" SENSOR ", KindSensor, false},
		{"heater", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownKind) {
				t.Errorf("error = %v, want ErrUnknownKind", err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		input   string
		want    State
		wantErr error
	}{
		{"valve open", KindValve, "open", StateOpen, nil},
		{"valve closing mixed case", KindValve, "Closing", StateClosing, nil},
		{"pump priming", KindPump, "PRIMING", StatePriming, nil},
		{"sensor active", KindSensor, "active", StateActive, nil},
		{"pump cannot open", KindPump, "open", "", ErrInvalidState},
		{"sensor cannot run", KindSensor, "running", "", ErrInvalidState},
		{"unknown kind", Kind("heater"), "idle", "", ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseState(tt.kind, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseState() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseState() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseState() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestKindStates(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValve, 5},
		{KindPump, 3},
		{KindSensor, 2},
		{Kind("heater"), 0},
	}
	for _, tt := range tests {
		states := tt.kind.States()
		if len(states) != tt.want {
			t.Errorf("%s.States() = %v, want %d states", tt.kind, states, tt.want)
		}
		if tt.want > 0 && states[0] != StateIdle {
			t.Errorf("%s.States()[0] = %s, want IDLE", tt.kind, states[0])
		}
	}

	// Returned slices are copies.
	s := KindPump.States()
	s[0] = StateOpen
	if KindPump.States()[0] != StateIdle {
		t.Error("States() exposed the table's backing slice")
	}
}

func TestTable(t *testing.T) {
	valve, ok := TableFor(KindValve)
	if !ok {
		t.Fatal("no valve table")
	}
	for _, from := range KindValve.States() {
		if valve.Allowed(from, from) {
			t.Errorf("valve table has self-loop on %s", from)
		}
		if got := len(valve.Targets(from)); got != 4 {
			t.Errorf("valve %s targets = %d, want 4", from, got)
		}
	}

	sensor, _ := TableFor(KindSensor)
	if !sensor.Allowed(StateIdle, StateActive) || !sensor.Allowed(StateActive, StateIdle) {
		t.Error("sensor table must toggle IDLE <-> ACTIVE")
	}
	if sensor.Allowed(StateIdle, StateOpen) {
		t.Error("sensor table allows a valve state")
	}

	pump, _ := TableFor(KindPump)
	if pump.Kind() != KindPump || !pump.Allowed(StateRunning, StatePriming) {
		t.Error("pump table must be fully connected")
	}
}

func TestTransitionCurrent(t *testing.T) {
	applied := Transition{From: StateIdle, To: StateOpen, Outcome: OutcomeApplied}
	rejected := Transition{From: StateIdle, To: StateRunning, Outcome: OutcomeRejected}

	if applied.Current() != StateOpen || !applied.Changed() {
		t.Errorf("applied.Current() = %s", applied.Current())
	}
	if rejected.Current() != StateIdle || rejected.Changed() {
		t.Errorf("rejected.Current() = %s", rejected.Current())
	}
}
