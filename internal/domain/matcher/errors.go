package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/bidsify/internal/domain/entity"
	"github.com/okian/bidsify/internal/domain/model"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrAmbiguousMatch = errors.New("ambiguous modality mapping")
	ErrBadPattern     = errors.New("invalid mapping pattern")
)

// AmbiguousMatchError reports a file matched by more than one mapping.
type AmbiguousMatchError struct {
	File       string
	Candidates []entity.ModalityType
}

func (e *AmbiguousMatchError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.String()
	}
	return fmt.Sprintf("%s: file %q matches %s; make the mappings unique",
		ErrAmbiguousMatch, e.File, strings.Join(names, ", "))
}

// Is matches ErrAmbiguousMatch and the configuration error kind.
func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch || target == model.ErrConfig
}
