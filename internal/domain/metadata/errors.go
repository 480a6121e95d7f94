package metadata

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrReadSidecar  = errors.New("read sidecar")
	ErrWriteSidecar = errors.New("write sidecar")
)
