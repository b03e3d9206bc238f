package controller

import "github.com/nerrad567/robojar-core/internal/device"

// ValveStatus is the view of one valve.
type ValveStatus struct {
	Number int          `json:"valve_number"`
	Name   string       `json:"name"`
	State  device.State `json:"state"`
}

// PumpStatus is the view of the pump.
type PumpStatus struct {
	Name  string       `json:"name"`
	State device.State `json:"state"`
}

// SensorStatus is the view of the sensor. State is ON or OFF.
type SensorStatus struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	State  string `json:"state"`
}

// Status is a snapshot of every device. It is computed on each call.
type Status struct {
	Valves []ValveStatus `json:"valves"`
	Pump   PumpStatus    `json:"pump"`
	Sensor SensorStatus  `json:"sensor"`
}

// ValveStatus returns the status of valve n.
func (c *Controller) ValveStatus(n int) (ValveStatus, error) {
	m, err := c.Valve(n)
	if err != nil {
		return ValveStatus{}, err
	}
	return ValveStatus{Number: n, Name: m.Name(), State: m.State()}, nil
}

// PumpStatus returns the status of the pump.
func (c *Controller) PumpStatus() PumpStatus {
	return PumpStatus{Name: c.pump.Name(), State: c.pump.State()}
}

// SensorStatus returns the status of the sensor.
func (c *Controller) SensorStatus() SensorStatus {
	return sensorStatus(c.sensor.Name(), c.sensor.State())
}

func sensorStatus(name string, s device.State) SensorStatus {
	return SensorStatus{
		Name:   name,
		Active: s == device.StateActive,
		State:  Label(device.KindSensor, s),
	}
}

// Status returns a fresh snapshot of every device.
func (c *Controller) Status() Status {
	st := Status{
		Valves: make([]ValveStatus, len(c.valves)),
		Pump:   c.PumpStatus(),
		Sensor: c.SensorStatus(),
	}
	for i, m := range c.valves {
		st.Valves[i] = ValveStatus{Number: i + 1, Name: m.Name(), State: m.State()}
	}
	return st
}
