// Package header reads the acquisition parameters needed for slice timing
// from image headers.
package header

import (
	"errors"
	"strings"
)

// Sentinel error kinds for this package.
var (
	ErrUnsupported = errors.New("unsupported image format")
	ErrMalformed   = errors.New("malformed image header")
)

// Info holds the header fields relevant to slice timing. Zero values mean
// the header did not provide them.
type Info struct {
	RepetitionTime float64 // seconds
	Slices         int
}

// Probe dispatches on the file extension.
func Probe(path string) (Info, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nii"), strings.HasSuffix(lower, ".nii.gz"):
		return readNIfTI(path)
	case strings.HasSuffix(lower, ".dcm"):
		return readDICOM(path)
	default:
		return Info{}, ErrUnsupported
	}
}
