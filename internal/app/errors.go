package service

import "errors"

// Sentinel errors returned by Run.
var (
	// ErrNoSubjects means the raw directory holds no subject directories.
	ErrNoSubjects = errors.New("no subject directories found")

	// ErrUnitsFailed means at least one unit failed; the report says which.
	ErrUnitsFailed = errors.New("units failed")
)
