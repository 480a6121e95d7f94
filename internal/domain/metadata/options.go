package metadata

import "github.com/okian/bidsify/pkg/logger"

// ImageInfo carries the header fields used for slice timing.
type ImageInfo struct {
	RepetitionTime float64 // seconds
	Slices         int
}

// HeaderFunc reads ImageInfo from an image file.
type HeaderFunc func(path string) (ImageInfo, error)

// Option applies a configuration option to the Cascader.
type Option func(*Cascader)

// WithHeaderFunc sets the image header reader used for SliceTiming.
func WithHeaderFunc(fn HeaderFunc) Option {
	return func(c *Cascader) {
		c.header = fn
	}
}

// WithLogger sets a custom logger for the cascader.
func WithLogger(l logger.Logger) Option {
	return func(c *Cascader) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithVersion overrides the BidsifyVersion written to every sidecar.
func WithVersion(v string) Option {
	return func(c *Cascader) {
		if v != "" {
			c.version = v
		}
	}
}
