package controller

import (
	"errors"

	"github.com/nerrad567/robojar-core/internal/device"
)

// ResetResult reports every device's state after ResetAll.
type ResetResult struct {
	Status
	Transitions []device.Transition `json:"transitions"`
}

// Step is one entry of the full test sequence log.
type Step struct {
	// Action names the device and the requested label, e.g. "Valve 1 OPENING".
	Action string `json:"action"`

	// State is the device label after the step.
	State string `json:"state"`

	// Target is the requested label.
	Target string `json:"target"`

	Device  string         `json:"device"`
	Kind    device.Kind    `json:"kind"`
	Index   int            `json:"index,omitempty"`
	Outcome device.Outcome `json:"outcome"`
}

// TestResult is the outcome of RunFullTestSequence.
type TestResult struct {
	Reset    ResetResult `json:"reset"`
	Sequence []Step      `json:"test_sequence"`
}

// ResetAll drives every valve to IDLE in number order, then the pump to
// IDLE, then the sensor to inactive.
//
// The returned result is complete even when err is non-nil; err joins the
// ledger failures of individual steps.
func (c *Controller) ResetAll() (ResetResult, error) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	c.logger.Info("resetting all devices")
	return c.resetAll()
}

func (c *Controller) resetAll() (ResetResult, error) {
	var errs []error
	res := ResetResult{
		Status: Status{Valves: make([]ValveStatus, len(c.valves))},
	}

	request := func(m *device.Machine, to device.State) device.State {
		tr, err := m.Request(to)
		if err != nil {
			errs = append(errs, err)
		}
		res.Transitions = append(res.Transitions, tr)
		return tr.Current()
	}

	for i, m := range c.valves {
		res.Valves[i] = ValveStatus{Number: i + 1, Name: m.Name(), State: request(m, device.StateIdle)}
	}
	res.Pump = PumpStatus{Name: c.pump.Name(), State: request(c.pump, device.StateIdle)}
	res.Sensor = sensorStatus(c.sensor.Name(), request(c.sensor, device.StateIdle))

	return res, errors.Join(errs...)
}

// RunFullTestSequence resets the rig and then exercises every device in a
// fixed order. A step the table rejects is recorded with its outcome and
// the sequence carries on.
//
// Returns:
//   - TestResult: Reset result and the ordered step log (4N+5 steps)
//   - error: Joined ledger failures; the result is complete regardless
func (c *Controller) RunFullTestSequence() (TestResult, error) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	c.logger.Info("running full test sequence", "valves", len(c.valves))

	reset, err := c.resetAll()
	errs := []error{err}
	res := TestResult{
		Reset:    reset,
		Sequence: make([]Step, 0, 4*len(c.valves)+5),
	}

	step := func(m *device.Machine, index int, to device.State) {
		tr, err := m.Request(to)
		if err != nil {
			errs = append(errs, err)
		}
		target := Label(m.Kind(), to)
		res.Sequence = append(res.Sequence, Step{
			Action:  m.Name() + " " + target,
			State:   Label(m.Kind(), tr.Current()),
			Target:  target,
			Device:  m.Name(),
			Kind:    m.Kind(),
			Index:   index,
			Outcome: tr.Outcome,
		})
	}

	for i, v := range c.valves {
		step(v, i+1, device.StateOpening)
		step(v, i+1, device.StateOpen)
	}
	step(c.pump, 0, device.StatePriming)
	step(c.pump, 0, device.StateRunning)
	step(c.sensor, 0, device.StateActive)
	for i, v := range c.valves {
		step(v, i+1, device.StateClosing)
		step(v, i+1, device.StateClosed)
	}
	step(c.pump, 0, device.StateIdle)
	step(c.sensor, 0, device.StateIdle)

	err = errors.Join(errs...)
	if err != nil {
		c.logger.Warn("test sequence finished with ledger errors", "error", err)
	}
	return res, err
}
