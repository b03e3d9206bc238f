package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/robojar-core/internal/device"
	"github.com/nerrad567/robojar-core/internal/ledger"
)

// Default device names.
const (
	DefaultValveNameFormat = "Valve %d"
	DefaultPumpName        = "Main Pump"
	DefaultSensorName      = "Sensor"
)

// Sensor status labels.
const (
	SensorOn  = "ON"
	SensorOff = "OFF"
)

// Logger defines the logging interface used by the controller.
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

// Config describes the fixed device set.
type Config struct {
	// Valves is the number of valves, numbered 1..Valves.
	Valves int

	// ValveNameFormat is a fmt layout taking the valve number.
	ValveNameFormat string

	PumpName   string
	SensorName string
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	sink      device.LedgerSink
	paths     ledger.Paths
	observers []device.Observer
	logger    Logger
	now       func() time.Time
}

// WithLedger routes every machine's ledger rows to sink.
func WithLedger(sink device.LedgerSink, paths ledger.Paths) Option {
	return func(o *options) {
		o.sink = sink
		o.paths = paths
	}
}

// WithObserver registers an observer on every machine.
func WithObserver(obs device.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithLogger sets the logger for the controller and its machines.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used by the machines.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Controller owns the rig's devices.
//
// All methods are safe for concurrent use.
type Controller struct {
	valves []*device.Machine // valves[i] is valve i+1
	pump   *device.Machine
	sensor *device.Machine

	seqMu  sync.Mutex // serialises choreographies
	logger Logger
}

// New builds the device set and records each machine's initial IDLE
// entry.
//
// Parameters:
//   - cfg: Device set; zero-value names fall back to the defaults
//   - opts: Ledger, observer, logger and clock options shared by all machines
//
// Returns:
//   - *Controller: Usable controller, also returned when only initial ledger writes failed
//   - error: ErrInvalidConfig (nil controller), or wrapping device.ErrLedgerWrite
func New(cfg Config, opts ...Option) (*Controller, error) {
	if cfg.Valves < 1 {
		return nil, fmt.Errorf("%w: valves must be at least 1, got %d", ErrInvalidConfig, cfg.Valves)
	}
	if cfg.ValveNameFormat == "" {
		cfg.ValveNameFormat = DefaultValveNameFormat
	}
	if cfg.PumpName == "" {
		cfg.PumpName = DefaultPumpName
	}
	if cfg.SensorName == "" {
		cfg.SensorName = DefaultSensorName
	}

	o := options{logger: noopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}

	machineOpts := []device.Option{device.WithLogger(o.logger)}
	if o.sink != nil {
		machineOpts = append(machineOpts, device.WithLedger(o.sink, o.paths))
	}
	for _, obs := range o.observers {
		machineOpts = append(machineOpts, device.WithObserver(obs))
	}
	if o.now != nil {
		machineOpts = append(machineOpts, device.WithClock(o.now))
	}

	c := &Controller{
		valves: make([]*device.Machine, 0, cfg.Valves),
		logger: o.logger,
	}

	var ledgerErrs []error
	build := func(kind device.Kind, name string) (*device.Machine, error) {
		m, err := device.NewMachine(kind, name, machineOpts...)
		if m == nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
		if err != nil {
			ledgerErrs = append(ledgerErrs, err)
		}
		return m, nil
	}

	for i := 1; i <= cfg.Valves; i++ {
		m, err := build(device.KindValve, fmt.Sprintf(cfg.ValveNameFormat, i))
		if err != nil {
			return nil, err
		}
		c.valves = append(c.valves, m)
	}

	var err error
	if c.pump, err = build(device.KindPump, cfg.PumpName); err != nil {
		return nil, err
	}
	if c.sensor, err = build(device.KindSensor, cfg.SensorName); err != nil {
		return nil, err
	}

	c.logger.Info("controller ready", "valves", cfg.Valves, "pump", cfg.PumpName, "sensor", cfg.SensorName)
	return c, errors.Join(ledgerErrs...)
}

// ValveCount returns the number of valves.
func (c *Controller) ValveCount() int { return len(c.valves) }

// Valve returns valve n, numbered from 1.
// Returns ErrInvalidDeviceIndex when n is outside 1..ValveCount().
func (c *Controller) Valve(n int) (*device.Machine, error) {
	if n < 1 || n > len(c.valves) {
		return nil, fmt.Errorf("%w: valve %d (have 1..%d)", ErrInvalidDeviceIndex, n, len(c.valves))
	}
	return c.valves[n-1], nil
}

// Pump returns the pump machine.
func (c *Controller) Pump() *device.Machine { return c.pump }

// Sensor returns the sensor machine.
func (c *Controller) Sensor() *device.Machine { return c.sensor }

// SensorActive reports whether the sensor is ACTIVE.
func (c *Controller) SensorActive() bool {
	return c.sensor.State() == device.StateActive
}

// SetSensor drives the sensor to ACTIVE or IDLE.
func (c *Controller) SetSensor(active bool) (device.Transition, error) {
	return c.sensor.Request(sensorState(active))
}

// Machines returns every machine: valves in number order, then pump and
// sensor.
func (c *Controller) Machines() []*device.Machine {
	out := make([]*device.Machine, 0, len(c.valves)+2)
	out = append(out, c.valves...)
	return append(out, c.pump, c.sensor)
}

// Lookup finds a machine by device name.
func (c *Controller) Lookup(name string) (*device.Machine, bool) {
	for _, m := range c.Machines() {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

func sensorState(active bool) device.State {
	if active {
		return device.StateActive
	}
	return device.StateIdle
}

// Label returns the display label for state s of kind k. Sensors report
// ON and OFF; every other kind reports the state name.
func Label(k device.Kind, s device.State) string {
	if k != device.KindSensor {
		return s.String()
	}
	if s == device.StateActive {
		return SensorOn
	}
	return SensorOff
}
