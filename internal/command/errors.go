package command

import "errors"

// Domain errors for the command package.
var (
	// ErrEmpty is returned when a command has no words.
	ErrEmpty = errors.New("command: empty")

	// ErrUnknownDevice is returned when no device word can be found.
	ErrUnknownDevice = errors.New("command: unknown device")

	// ErrUnknownAction is returned when the action does not apply to the device.
	ErrUnknownAction = errors.New("command: unknown action")

	// ErrMissingIndex is returned when a valve command has no valve number.
	ErrMissingIndex = errors.New("command: missing valve number")
)
