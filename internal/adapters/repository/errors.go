package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrUnavailable wraps every driver failure. It is the only store error the
	// service treats as a fault.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound means a read found no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a uniqueness constraint rejected a write.
	ErrConflict = errors.New("unique constraint conflict")
	// ErrInvalidLimit rejects non-positive read limits.
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrUnknownDriver rejects unsupported store drivers.
	ErrUnknownDriver = errors.New("unknown store driver")
)
