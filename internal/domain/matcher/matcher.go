// Package matcher classifies raw files into modality types by glob
// patterns.
package matcher

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/okian/bidsify/internal/domain/entity"
)

// Matcher tests basenames against the configured mappings.
type Matcher struct {
	types    []entity.ModalityType
	patterns map[entity.ModalityType]string
}

// New builds a Matcher from modality type → filename substring mappings.
// Empty patterns are skipped. Patterns may themselves contain glob syntax.
func New(mappings map[entity.ModalityType]string) (*Matcher, error) {
	m := &Matcher{patterns: make(map[entity.ModalityType]string, len(mappings))}
	for _, t := range slices.Sorted(maps.Keys(mappings)) {
		p := mappings[t]
		if p == "" {
			continue
		}
		glob := "*" + p + "*"
		if !doublestar.ValidatePattern(glob) {
			return nil, fmt.Errorf("mapping %s: %w: %q", t, ErrBadPattern, p)
		}
		m.types = append(m.types, t)
		m.patterns[t] = glob
	}
	return m, nil
}

// Candidates returns every modality type whose pattern matches the
// basename of path, sorted.
func (m *Matcher) Candidates(path string) []entity.ModalityType {
	base := filepath.Base(path)
	var out []entity.ModalityType
	for _, t := range m.types {
		if ok, _ := doublestar.Match(m.patterns[t], base); ok {
			out = append(out, t)
		}
	}
	return out
}

// Classify returns the unique modality type of path. ok is false when no
// pattern matches; the file is then unallocated. Several matches yield an
// *AmbiguousMatchError.
func (m *Matcher) Classify(path string) (entity.ModalityType, bool, error) {
	cands := m.Candidates(path)
	switch len(cands) {
	case 0:
		return "", false, nil
	case 1:
		return cands[0], true, nil
	default:
		return "", false, &AmbiguousMatchError{File: path, Candidates: cands}
	}
}
