package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrLedgerWrite) {
//	    // state changed, but the audit row is missing
//	}
var (
	// ErrUnknownKind is returned when a kind value is not recognised.
	ErrUnknownKind = errors.New("device: unknown kind")

	// ErrInvalidState is returned when a state is not part of the kind's state set.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidName is returned when a machine is created without a name.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrLedgerWrite is returned when a transition committed but one of its
	// ledger rows could not be written.
	ErrLedgerWrite = errors.New("device: ledger write failed")
)
