// Package command turns operator commands into state machine requests.
//
// Commands arrive as short phrases from the HTTP API or the MQTT command
// topic:
//
//	open valve 2
//	valve 2 close
//	pump on
//	turn sensor off
//	set valve 1 closing
//	reset
//
// Parse resolves a phrase to a Command naming one device and one Action.
// Executor maps the Action onto the device's states (open is OPENING then
// OPEN, close is CLOSING then CLOSED) and reports the previous and new
// state. Every executed command is also announced through an optional
// Dispatcher as a compact name such as valve2Open or pumpOn.
package command
