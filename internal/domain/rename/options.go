package rename

import (
	"strings"

	"github.com/okian/bidsify/pkg/logger"
)

// Mode selects how files reach their target.
type Mode int

const (
	// Move renames the source; it is gone afterwards.
	Move Mode = iota
	// Copy leaves the source in place.
	Copy
)

// Option applies a configuration option to the Renamer.
type Option func(*Renamer)

// WithMode sets move or copy semantics.
func WithMode(mode Mode) Option {
	return func(r *Renamer) {
		r.mode = mode
	}
}

// WithLogger sets a custom logger for the renamer.
func WithLogger(l logger.Logger) Option {
	return func(r *Renamer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDebug logs every planned rename.
func WithDebug(debug bool) Option {
	return func(r *Renamer) {
		r.debug = debug
	}
}

// WithAllowedExtensions replaces the extension allow-list. Matching is
// case-insensitive.
func WithAllowedExtensions(exts []string) Option {
	return func(r *Renamer) {
		if len(exts) == 0 {
			return
		}
		r.allowed = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			r.allowed[strings.ToLower(e)] = struct{}{}
		}
	}
}
