package controller

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/robojar-core/internal/device"
	"github.com/nerrad567/robojar-core/internal/ledger"
)

func testPaths(t *testing.T) ledger.Paths {
	t.Helper()
	dir := t.TempDir()
	return ledger.Paths{
		System: filepath.Join(dir, "SystemLog.csv"),
		Valve:  filepath.Join(dir, "ValveLog.csv"),
		Pump:   filepath.Join(dir, "PumpLog.csv"),
		Sensor: filepath.Join(dir, "SensorLog.csv"),
	}
}

func newTestController(t *testing.T, valves int) (*Controller, *ledger.Ledger, ledger.Paths) {
	t.Helper()
	l := ledger.New()
	paths := testPaths(t)
	c, err := New(Config{Valves: valves}, WithLedger(l, paths))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, l, paths
}

func TestNew_Defaults(t *testing.T) {
	c, l, paths := newTestController(t, 3)

	if c.ValveCount() != 3 {
		t.Errorf("ValveCount() = %d, want 3", c.ValveCount())
	}
	if c.Pump().Name() != DefaultPumpName || c.Sensor().Name() != DefaultSensorName {
		t.Errorf("names = %q, %q", c.Pump().Name(), c.Sensor().Name())
	}
	v2, _ := c.Valve(2)
	if v2.Name() != "Valve 2" {
		t.Errorf("Valve(2).Name() = %q", v2.Name())
	}

	// Every device records its initial IDLE entry.
	sys, _ := l.Entries(paths.System)
	if len(sys) != 5 {
		t.Errorf("system rows = %d, want 5", len(sys))
	}
	valveRows, _ := l.Entries(paths.Valve)
	if len(valveRows) != 3 {
		t.Errorf("valve rows = %d, want 3", len(valveRows))
	}
}

func TestNew_CustomNames(t *testing.T) {
	c, err := New(Config{Valves: 2, ValveNameFormat: "V%02d", PumpName: "P1", SensorName: "Level"})
	if err != nil {
		t.Fatal(err)
	}
	v1, _ := c.Valve(1)
	if v1.Name() != "V01" || c.Pump().Name() != "P1" || c.Sensor().Name() != "Level" {
		t.Errorf("names = %q, %q, %q", v1.Name(), c.Pump().Name(), c.Sensor().Name())
	}
	if m, ok := c.Lookup("Level"); !ok || m != c.Sensor() {
		t.Error("Lookup(Level) did not return the sensor")
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup(nope) found a device")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(Config{Valves: n}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New(valves=%d) error = %v, want ErrInvalidConfig", n, err)
		}
	}
}

func TestNew_LedgerFailureStillBuilds(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	paths := ledger.Paths{System: filepath.Join(blocker, "SystemLog.csv")}

	c, err := New(Config{Valves: 1}, WithLedger(ledger.New(), paths))
	if c == nil {
		t.Fatal("New() returned nil controller on ledger failure")
	}
	if !errors.Is(err, device.ErrLedgerWrite) {
		t.Errorf("error = %v, want ErrLedgerWrite", err)
	}
}

func TestValve_Bounds(t *testing.T) {
	c, _, _ := newTestController(t, 3)

	tests := []struct {
		n       int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{2, false},
		{3, false},
		{4, true},
		{-1, true},
	}
	for _, tt := range tests {
		m, err := c.Valve(tt.n)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDeviceIndex) || m != nil {
				t.Errorf("Valve(%d) = %v, %v; want nil, ErrInvalidDeviceIndex", tt.n, m, err)
			}
			continue
		}
		if err != nil || m == nil {
			t.Errorf("Valve(%d) = %v, %v; want usable machine", tt.n, m, err)
		}
	}

	if _, err := c.ValveStatus(4); !errors.Is(err, ErrInvalidDeviceIndex) {
		t.Errorf("ValveStatus(4) error = %v", err)
	}
}

func TestStatus_Fresh(t *testing.T) {
	c, _, _ := newTestController(t, 3)

	st := c.Status()
	if len(st.Valves) != 3 || st.Pump.State != device.StateIdle || st.Sensor.Active || st.Sensor.State != SensorOff {
		t.Fatalf("initial status = %+v", st)
	}

	v3, _ := c.Valve(3)
	if _, err := v3.Request(device.StateOpening); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetSensor(true); err != nil {
		t.Fatal(err)
	}

	st = c.Status()
	if st.Valves[2].State != device.StateOpening || st.Valves[2].Number != 3 {
		t.Errorf("valve 3 status = %+v", st.Valves[2])
	}
	if !st.Sensor.Active || st.Sensor.State != SensorOn || !c.SensorActive() {
		t.Errorf("sensor status = %+v", st.Sensor)
	}

	vs, err := c.ValveStatus(3)
	if err != nil || vs.Name != "Valve 3" || vs.State != device.StateOpening {
		t.Errorf("ValveStatus(3) = %+v, %v", vs, err)
	}
}

func TestResetAll_FromAnyState(t *testing.T) {
	valveStates := []device.State{device.StateOpening, device.StateOpen, device.StateClosing, device.StateClosed, device.StateIdle}
	pumpStates := []device.State{device.StatePriming, device.StateRunning, device.StateIdle}

	for _, vs := range valveStates {
		for _, ps := range pumpStates {
			t.Run(vs.String()+"/"+ps.String(), func(t *testing.T) {
				c, _, _ := newTestController(t, 3)
				for n := 1; n <= 3; n++ {
					v, _ := c.Valve(n)
					_, _ = v.Request(vs)
				}
				_, _ = c.Pump().Request(ps)
				_, _ = c.SetSensor(true)

				res, err := c.ResetAll()
				if err != nil {
					t.Fatalf("ResetAll() error = %v", err)
				}
				for _, v := range res.Valves {
					if v.State != device.StateIdle {
						t.Errorf("%s = %s, want IDLE", v.Name, v.State)
					}
				}
				if res.Pump.State != device.StateIdle || res.Sensor.Active {
					t.Errorf("pump = %s, sensor = %+v", res.Pump.State, res.Sensor)
				}
				if len(res.Transitions) != 5 {
					t.Errorf("transitions = %d, want 5", len(res.Transitions))
				}

				st := c.Status()
				for _, v := range st.Valves {
					if v.State != device.StateIdle {
						t.Errorf("status %s = %s after reset", v.Name, v.State)
					}
				}
			})
		}
	}
}

func TestRunFullTestSequence_Order(t *testing.T) {
	c, l, paths := newTestController(t, 3)

	res, err := c.RunFullTestSequence()
	if err != nil {
		t.Fatalf("RunFullTestSequence() error = %v", err)
	}

	want := []Step{
		{Action: "Valve 1 OPENING", State: "OPENING"},
		{Action: "Valve 1 OPEN", State: "OPEN"},
		{Action: "Valve 2 OPENING", State: "OPENING"},
		{Action: "Valve 2 OPEN", State: "OPEN"},
		{Action: "Valve 3 OPENING", State: "OPENING"},
		{Action: "Valve 3 OPEN", State: "OPEN"},
		{Action: "Main Pump PRIMING", State: "PRIMING"},
		{Action: "Main Pump RUNNING", State: "RUNNING"},
		{Action: "Sensor ON", State: "ON"},
		{Action: "Valve 1 CLOSING", State: "CLOSING"},
		{Action: "Valve 1 CLOSED", State: "CLOSED"},
		{Action: "Valve 2 CLOSING", State: "CLOSING"},
		{Action: "Valve 2 CLOSED", State: "CLOSED"},
		{Action: "Valve 3 CLOSING", State: "CLOSING"},
		{Action: "Valve 3 CLOSED", State: "CLOSED"},
		{Action: "Main Pump IDLE", State: "IDLE"},
		{Action: "Sensor OFF", State: "OFF"},
	}

	if len(res.Sequence) != len(want) {
		t.Fatalf("steps = %d, want %d", len(res.Sequence), len(want))
	}
	for i, w := range want {
		got := res.Sequence[i]
		if got.Action != w.Action || got.State != w.State {
			t.Errorf("step %d = {%s, %s}, want {%s, %s}", i, got.Action, got.State, w.Action, w.State)
		}
		if got.Outcome != device.OutcomeApplied {
			t.Errorf("step %d outcome = %s, want applied", i, got.Outcome)
		}
	}
	if res.Sequence[0].Index != 1 || res.Sequence[14].Index != 3 || res.Sequence[6].Kind != device.KindPump {
		t.Errorf("step metadata wrong: %+v", res.Sequence)
	}

	// Initial IDLE + OPENING, OPEN, CLOSING, CLOSED per valve.
	valveRows, _ := l.Entries(paths.Valve)
	if len(valveRows) != 3*5 {
		t.Errorf("valve rows = %d, want 15", len(valveRows))
	}
	// Initial IDLE + PRIMING, RUNNING, IDLE.
	pumpRows, _ := l.Entries(paths.Pump)
	if len(pumpRows) != 4 {
		t.Errorf("pump rows = %d, want 4", len(pumpRows))
	}

	st := c.Status()
	if st.Pump.State != device.StateIdle || st.Sensor.Active {
		t.Errorf("final status = %+v", st)
	}
	for _, v := range st.Valves {
		if v.State != device.StateClosed {
			t.Errorf("%s = %s, want CLOSED", v.Name, v.State)
		}
	}
}

func TestRunFullTestSequence_StepCountScalesWithValves(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		c, err := New(Config{Valves: n})
		if err != nil {
			t.Fatal(err)
		}
		res, err := c.RunFullTestSequence()
		if err != nil {
			t.Fatal(err)
		}
		if got, want := len(res.Sequence), 4*n+5; got != want {
			t.Errorf("valves=%d steps = %d, want %d", n, got, want)
		}
	}
}

// TestRunFullTestSequence_Concurrent runs several sequences at once and
// checks that none of them saw another's steps interleaved.
func TestRunFullTestSequence_Concurrent(t *testing.T) {
	c, _, _ := newTestController(t, 3)

	var wg sync.WaitGroup
	results := make([]TestResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.RunFullTestSequence()
			if err != nil {
				t.Errorf("RunFullTestSequence() error = %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		for j, s := range res.Sequence {
			if s.Outcome != device.OutcomeApplied {
				t.Errorf("run %d step %d (%s) outcome = %s", i, j, s.Action, s.Outcome)
			}
		}
	}
}
