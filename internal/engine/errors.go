package engine

import "errors"

var (
	// ErrDuplicateKey is returned by Store when the record id is already present.
	ErrDuplicateKey = errors.New("duplicate record id")
	// ErrNotFound is returned when a record id is absent.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidArgument is returned for missing or out-of-range inputs.
	ErrInvalidArgument = errors.New("invalid argument")
)
