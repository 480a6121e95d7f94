package model

import "errors"

// Error kinds shared across the domain packages. Concrete errors match one
// of them through errors.Is.
var (
	// ErrConfig marks defects in the conversion configuration. The affected
	// element or unit is aborted.
	ErrConfig = errors.New("configuration error")

	// ErrData marks defects in an input file. Only that file is aborted.
	ErrData = errors.New("data error")
)
