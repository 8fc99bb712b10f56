package ledger

import "errors"

// Sentinel errors for ledger operations.
var (
	// ErrConflict is returned when a record with the given ID has
	// already been appended.
	ErrConflict = errors.New("usage record already exists")

	// ErrInvalidRecord is returned when a record is missing required
	// fields.
	ErrInvalidRecord = errors.New("invalid usage record")
)
