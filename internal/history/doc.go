// Package history mirrors applied device transitions into SQLite so the
// API can answer "what did this valve do today" without scanning CSV
// ledgers.
//
// The mirror is fed asynchronously from the events bus and may miss
// events that the bus dropped. It is never read back into device state.
package history
