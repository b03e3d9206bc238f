// Package device provides the per-kind state machines that drive the rig's
// valves, pump and sensor.
//
// Every device is a Machine parameterised by a static transition Table for
// its Kind. A Machine starts in IDLE and only changes state through
// Request, which is a pure table lookup followed by a single on-transition
// hook.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────┐
//	│                        Machine                            │
//	│                                                           │
//	│   Request(to) ──▶ Table.Allowed(from, to)                 │
//	│                        │                                  │
//	│          ┌─────────────┼──────────────┐                   │
//	│          ▼             ▼              ▼                   │
//	│      unchanged      rejected       applied                │
//	│     (to == from)  (not in table)     │                    │
//	│                                      ▼                    │
//	│                           onTransition(from, to)          │
//	│                             • kind ledger: Append         │
//	│                             • system ledger: RecordIfChanged
//	│                             • observer                    │
//	└───────────────────────────────────────────────────────────┘
//
// # Transition tables
//
//   - Valve: IDLE, OPENING, OPEN, CLOSING, CLOSED, fully connected
//   - Pump: IDLE, PRIMING, RUNNING, fully connected
//   - Sensor: IDLE and ACTIVE
//
// No table contains a self-loop. Requesting the current state is a no-op.
//
// # Failure semantics
//
// A rejected request is not an error; it reports Outcome rejected and
// Changed() == false. A ledger failure is returned wrapped in
// ErrLedgerWrite, but the state change it belongs to stays committed.
//
// # Thread Safety
//
// Each Machine owns a mutex held across check, commit and ledger writes,
// so transitions on one device are serialised while different devices
// proceed independently.
//
// # Usage
//
//	l := ledger.New()
//	paths := ledger.Paths{System: "Logs/SystemLog.csv", Valve: "Logs/ValveLog.csv"}
//	valve, err := device.NewMachine(device.KindValve, "Valve 1",
//	    device.WithLedger(l, paths))
//	if err != nil {
//	    return err
//	}
//	tr, err := valve.Request(device.StateOpening)
package device
