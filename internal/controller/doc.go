// Package controller owns the rig's fixed device set and runs the
// multi-device choreographies.
//
// A Controller holds N valve machines (numbered from 1), one pump machine
// and one sensor machine. Devices are created once, in IDLE, and live for
// the lifetime of the process.
//
// Single-device calls take only that device's lock. ResetAll and
// RunFullTestSequence are additionally serialised against each other so
// two choreographies never interleave their steps.
//
// Full test sequence, for a rig with N valves:
//
//	reset
//	Valve 1..N: OPENING, OPEN
//	Pump: PRIMING, RUNNING
//	Sensor: ON
//	Valve 1..N: CLOSING, CLOSED
//	Pump: IDLE
//	Sensor: OFF
//
// The step log has 4N+5 entries and is returned in execution order.
package controller
