package model

import "errors"

// Sentinel errors shared across the data layer. Callers match them with
// errors.Is; the store wraps them with row-specific context.
var (
	// ErrNotFound is returned for operations on a missing find, session
	// or work item. A miss is never a silent no-op.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID is returned when inserting a record whose id already
	// exists. Callers are expected to have generated a fresh id.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrValidation is returned for malformed input, rejected before any
	// write is issued.
	ErrValidation = errors.New("validation")
)
