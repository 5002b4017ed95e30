package service

import "errors"

// Client errors.  Everything else the engine returns is an
// infrastructure failure and should reach the caller as a generic server
// error.
var (
	// ErrInvalidRequest reports malformed input; nothing was written.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrIdempotencyConflict reports an idempotency key reused with a
	// different payload; nothing was written.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")
)
