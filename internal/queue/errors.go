package queue

import "errors"

// ErrAlreadyQueued indicates a non-terminal job already exists for the
// target. Enqueueing the same target twice never creates a second row.
var ErrAlreadyQueued = errors.New("target already queued")

// ErrInvalidTransition indicates an operation was attempted from a status
// that does not permit it (e.g. retrying a completed job).
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotFound indicates the referenced job does not exist.
var ErrNotFound = errors.New("job not found")
