package controller

import "errors"

// Domain errors for the controller package.
var (
	// ErrInvalidDeviceIndex is returned when a valve number is outside 1..N.
	ErrInvalidDeviceIndex = errors.New("controller: invalid device index")

	// ErrInvalidConfig is returned when the controller configuration is unusable.
	ErrInvalidConfig = errors.New("controller: invalid config")
)
