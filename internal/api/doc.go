// Package api serves the rig's HTTP and WebSocket front end.
//
// It is a thin surface over command.Executor: every device route builds a
// command and executes it, so the API, MQTT commands and the test
// sequence all drive the same machines and ledgers.
//
// Routes (all JSON):
//
//	GET  /api/v1/health
//	GET  /api/v1/status
//	POST /api/v1/valves/{n}/{action}     open | close
//	POST /api/v1/pump/{action}           on | off | prime
//	POST /api/v1/sensor/{action}         on | off
//	POST /api/v1/commands                {"command":"open valve 2"}
//	POST /api/v1/reset
//	POST /api/v1/test-sequence
//	GET  /api/v1/ledger/{log}            system | valve | pump | sensor
//	GET  /api/v1/history/{device}
//	GET  /api/v1/ws
//	GET  /metrics
//
// A rejected transition answers 409 with the unchanged result in the
// body. A ledger write failure does not fail the request: the state was
// committed, so the response is 200 with a warning field.
package api
