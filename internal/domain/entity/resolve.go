package entity

import (
	"maps"
	"path/filepath"
	"slices"
)

// Input describes one classified file.
type Input struct {
	Type       ModalityType
	Structural map[string]string // sub and, in sessions, ses
	Declared   map[string]string // element entities from configuration
	Source     string            // path of the raw file
}

// Resolution is the entity set of a file plus the declared keys that were
// rejected by the schema.
type Resolution struct {
	Entities map[string]string
	Dropped  []string
}

// Resolver combines structural, declared and filename entities.
type Resolver struct {
	quirks *Quirks
}

// NewResolver returns a resolver applying quirks; nil means DefaultQuirks.
func NewResolver(quirks *Quirks) *Resolver {
	if quirks == nil {
		quirks = DefaultQuirks()
	}
	return &Resolver{quirks: quirks}
}

// Resolve computes the entity set of in. Declared entities take
// precedence over entities embedded in the filename; keys outside the
// modality schema are dropped, and reported when they were declared.
func (r *Resolver) Resolve(in Input) Resolution {
	ents := make(map[string]string, len(in.Structural)+len(in.Declared))
	maps.Copy(ents, in.Structural)

	var dropped []string
	for _, k := range slices.Sorted(maps.Keys(in.Declared)) {
		key := r.quirks.renameKey(in.Type, k)
		if !in.Type.Allows(key) {
			dropped = append(dropped, k)
			continue
		}
		ents[key] = in.Declared[k]
	}

	base := r.quirks.fixFilename(filepath.Base(in.Source))
	for _, p := range FromFilename(base) {
		key := r.quirks.renameKey(in.Type, p.Key)
		if !in.Type.Allows(key) {
			continue
		}
		if _, set := ents[key]; set {
			continue
		}
		ents[key] = p.Value
	}

	r.quirks.adjust(in.Type, in.Source, ents)
	return Resolution{Entities: ents, Dropped: dropped}
}
