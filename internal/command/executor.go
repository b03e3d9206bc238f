package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/robojar-core/internal/controller"
	"github.com/nerrad567/robojar-core/internal/device"
)

// Dispatcher forwards compact command names to the rig hardware side.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, name string) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, name string) error {
	return f(ctx, name)
}

// Logger defines the logging interface used by the executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the reply to a single-device command.
type Result struct {
	Command  string       `json:"command"`
	Device   string       `json:"device"`
	Kind     device.Kind  `json:"kind"`
	Index    int          `json:"index,omitempty"`
	Previous device.State `json:"previous_state"`
	New      device.State `json:"new_state"`
	Label    string       `json:"state"`

	// Changed is true when the device ended in a different state.
	Changed bool `json:"changed"`

	// Rejected is true when any step was refused by the transition table.
	Rejected bool `json:"rejected"`

	Steps []device.Transition `json:"steps"`
}

// Executor runs commands against a controller.
//
// Executor is safe for concurrent use; serialisation happens in the
// device machines and the controller.
type Executor struct {
	ctrl       *controller.Controller
	dispatcher Dispatcher
	logger     Logger
}

// NewExecutor creates an executor for ctrl. A nil dispatcher disables
// command forwarding.
func NewExecutor(ctrl *controller.Controller, dispatcher Dispatcher) *Executor {
	return &Executor{
		ctrl:       ctrl,
		dispatcher: dispatcher,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// Controller returns the controller the executor drives.
func (e *Executor) Controller() *controller.Controller { return e.ctrl }

// ExecuteText parses text and executes it. It only accepts single-device
// commands; use Reset and RunTest for the rig-wide ones.
func (e *Executor) ExecuteText(ctx context.Context, text string) (Result, error) {
	cmd, err := Parse(text)
	if err != nil {
		return Result{}, err
	}
	return e.Execute(ctx, cmd)
}

// Execute drives one device through the command's target states.
//
// Returns:
//   - Result: Previous and new state plus each step
//   - error: Parse-level errors, controller.ErrInvalidDeviceIndex, or
//     wrapping device.ErrLedgerWrite (the result is still valid then)
func (e *Executor) Execute(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Action == ActionReset || cmd.Action == ActionTest {
		return Result{}, fmt.Errorf("%w: %s is not a device command", ErrUnknownAction, cmd.Action)
	}

	targets, err := cmd.Targets()
	if err != nil {
		return Result{}, err
	}
	m, err := e.machine(cmd)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Command: cmd.Name(),
		Device:  m.Name(),
		Kind:    m.Kind(),
		Index:   cmd.Index,
	}

	// A device already at the final target is left alone rather than
	// walked back through the ramp.
	if last := targets[len(targets)-1]; m.State() == last {
		targets = targets[len(targets)-1:]
	}

	var errs []error
	for i, to := range targets {
		tr, err := m.Request(to)
		if err != nil {
			errs = append(errs, err)
		}
		if i == 0 {
			res.Previous = tr.From
		}
		res.New = tr.Current()
		res.Rejected = res.Rejected || tr.Outcome == device.OutcomeRejected
		res.Steps = append(res.Steps, tr)
	}
	res.Changed = res.Previous != res.New
	res.Label = controller.Label(res.Kind, res.New)

	e.logger.Info("command executed",
		"command", res.Command,
		"device", res.Device,
		"previous", res.Previous,
		"new", res.New,
		"changed", res.Changed,
	)
	if res.Changed {
		e.dispatch(ctx, res.Command)
	}
	return res, errors.Join(errs...)
}

// Reset runs the controller's reset choreography and dispatches resetAll.
func (e *Executor) Reset(ctx context.Context) (controller.ResetResult, error) {
	res, err := e.ctrl.ResetAll()
	e.dispatch(ctx, Command{Action: ActionReset}.Name())
	return res, err
}

// RunTest runs the full test sequence and dispatches one command name per
// step, in order.
func (e *Executor) RunTest(ctx context.Context) (controller.TestResult, error) {
	res, err := e.ctrl.RunFullTestSequence()
	for _, s := range res.Sequence {
		e.dispatch(ctx, Name(s.Kind, s.Index, s.Target))
	}
	return res, err
}

func (e *Executor) machine(cmd Command) (*device.Machine, error) {
	switch cmd.Kind {
	case device.KindValve:
		return e.ctrl.Valve(cmd.Index)
	case device.KindPump:
		return e.ctrl.Pump(), nil
	case device.KindSensor:
		return e.ctrl.Sensor(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, cmd.Kind)
}

// dispatch forwards name. Failures are logged; the state change already
// happened and is not undone.
func (e *Executor) dispatch(ctx context.Context, name string) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, name); err != nil {
		e.logger.Warn("command dispatch failed", "command", name, "error", err)
	}
}
