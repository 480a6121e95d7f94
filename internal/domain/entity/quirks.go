package entity

import (
	"path/filepath"
	"strings"
)

// FilenameQuirk rewrites a raw basename before its tokens are parsed.
type FilenameQuirk func(base string) string

// KeyQuirk renames an entity key for a modality type. It runs on every
// candidate key before the schema check.
type KeyQuirk func(t ModalityType, key string) string

// EntityQuirk adjusts a resolved entity set in place.
type EntityQuirk func(t ModalityType, source string, ents map[string]string)

type named[F any] struct {
	name string
	fn   F
}

// Quirks is an ordered registry of scanner- and site-specific corrections.
// New fixes are registered here instead of being special-cased in the
// resolver.
type Quirks struct {
	filename []named[FilenameQuirk]
	keys     []named[KeyQuirk]
	entities []named[EntityQuirk]
}

// NewQuirks returns an empty registry.
func NewQuirks() *Quirks { return &Quirks{} }

// DefaultQuirks returns the registry with the built-in corrections.
func DefaultQuirks() *Quirks {
	q := NewQuirks()
	q.RegisterFilename("acq-typo", fixAcqTypo)
	q.RegisterKey("epi-task-to-dir", epiTaskToDir)
	q.RegisterEntity("physio-recording", physioRecording)
	return q
}

// RegisterFilename appends a filename correction.
func (q *Quirks) RegisterFilename(name string, fn FilenameQuirk) {
	q.filename = append(q.filename, named[FilenameQuirk]{name: name, fn: fn})
}

// RegisterKey appends a key correction.
func (q *Quirks) RegisterKey(name string, fn KeyQuirk) {
	q.keys = append(q.keys, named[KeyQuirk]{name: name, fn: fn})
}

// RegisterEntity appends an entity-set correction.
func (q *Quirks) RegisterEntity(name string, fn EntityQuirk) {
	q.entities = append(q.entities, named[EntityQuirk]{name: name, fn: fn})
}

// Names lists the registered corrections in application order.
func (q *Quirks) Names() []string {
	var names []string
	for _, f := range q.filename {
		names = append(names, f.name)
	}
	for _, f := range q.keys {
		names = append(names, f.name)
	}
	for _, f := range q.entities {
		names = append(names, f.name)
	}
	return names
}

func (q *Quirks) fixFilename(base string) string {
	for _, f := range q.filename {
		base = f.fn(base)
	}
	return base
}

func (q *Quirks) renameKey(t ModalityType, key string) string {
	for _, f := range q.keys {
		key = f.fn(t, key)
	}
	return key
}

func (q *Quirks) adjust(t ModalityType, source string, ents map[string]string) {
	for _, f := range q.entities {
		f.fn(t, source, ents)
	}
}

// fixAcqTypo repairs "x-acq-y" written instead of "x_acq-y". Values that
// merely start with acq, as in task-acquisition, are left alone.
func fixAcqTypo(base string) string {
	return strings.ReplaceAll(base, "-acq-", "_acq-")
}

// epiTaskToDir maps the task of a topup onto its phase-encoding direction.
func epiTaskToDir(t ModalityType, key string) string {
	if t == EPI && key == "task" {
		return "dir"
	}
	return key
}

// physioRecording labels eye-tracker and respiration/cardiac recordings.
func physioRecording(t ModalityType, source string, ents map[string]string) {
	if t != Physio {
		return
	}
	if _, ok := ents["recording"]; ok {
		return
	}
	if strings.EqualFold(filepath.Ext(source), ".edf") {
		ents["recording"] = "eyetracker"
		return
	}
	ents["recording"] = "respcardiac"
}
