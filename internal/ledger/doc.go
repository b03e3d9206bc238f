// Package ledger implements the append-only CSV ledgers that record
// device status.
//
// Each ledger is a comma-separated file with the header
//
//	Time,Name,Status,Notes
//
// and one row per recorded event. Files are only ever opened in append
// mode; nothing in this package rewrites or truncates a ledger.
//
// Two write disciplines share the same file format:
//
//   - Append writes every row it is given. Per-kind ledgers (valves,
//     pump, sensor) use it and keep the full history.
//   - RecordIfChanged writes a row only if the status differs from the
//     last status recorded for the same name. The system ledger uses it
//     and keeps only the change history.
//
// # Usage
//
//	l := ledger.New()
//	_ = l.Append("Logs/ValveLog.csv", ledger.Entry{Name: "Valve 1", Status: "OPEN"})
//	changed, err := l.RecordIfChanged("Logs/SystemLog.csv", "Valve 1", "OPEN", "")
package ledger
