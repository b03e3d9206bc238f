package ledger

import "errors"

// Sentinel errors for ledger operations.
//
//	if errors.Is(err, ledger.ErrWrite) {
//	    // row was not persisted
//	}
var (
	// ErrNoPath is returned when an operation is given an empty path.
	ErrNoPath = errors.New("ledger: path is empty")

	// ErrWrite is returned when a row cannot be appended.
	ErrWrite = errors.New("ledger: write failed")

	// ErrRead is returned when an existing ledger cannot be read or parsed.
	ErrRead = errors.New("ledger: read failed")
)
