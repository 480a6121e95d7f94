// Package entity holds the BIDS naming schema and resolves the entity set
// of a raw file from configuration, filename and directory position.
package entity

import "slices"

// ModalityType is the semantic category of a file within a data type. It
// doubles as the filename suffix.
type ModalityType string

// Supported modality types.
const (
	T1w        ModalityType = "T1w"
	T2w        ModalityType = "T2w"
	FLAIR      ModalityType = "FLAIR"
	Bold       ModalityType = "bold"
	Events     ModalityType = "events"
	Physio     ModalityType = "physio"
	Stim       ModalityType = "stim"
	DWI        ModalityType = "dwi"
	Phasediff  ModalityType = "phasediff"
	Magnitude1 ModalityType = "magnitude1"
	EPI        ModalityType = "epi"
)

// Data types, i.e. the directories below a subject or session.
const (
	Func = "func"
	Anat = "anat"
	Fmap = "fmap"
	Dwi  = "dwi"
)

// DataTypes lists the data types in processing order.
var DataTypes = []string{Func, Anat, Fmap, Dwi}

type schema struct {
	dataType string
	entities []string
}

var (
	anatEntities   = []string{"sub", "ses", "acq", "ce", "rec", "run"}
	funcEntities   = []string{"sub", "ses", "task", "acq", "rec", "run", "echo"}
	recEntities    = []string{"sub", "ses", "task", "acq", "rec", "run", "echo", "recording"}
	simpleEntities = []string{"sub", "ses", "acq", "run"}
	epiEntities    = []string{"sub", "ses", "acq", "run", "dir"}
)

// order fixes both the enumeration order and each type's entity order.
var order = []ModalityType{T1w, T2w, FLAIR, Bold, Events, Physio, Stim, DWI, Phasediff, Magnitude1, EPI}

var schemas = map[ModalityType]schema{
	T1w:        {dataType: Anat, entities: anatEntities},
	T2w:        {dataType: Anat, entities: anatEntities},
	FLAIR:      {dataType: Anat, entities: anatEntities},
	Bold:       {dataType: Func, entities: funcEntities},
	Events:     {dataType: Func, entities: funcEntities},
	Physio:     {dataType: Func, entities: recEntities},
	Stim:       {dataType: Func, entities: recEntities},
	DWI:        {dataType: Dwi, entities: simpleEntities},
	Phasediff:  {dataType: Fmap, entities: simpleEntities},
	Magnitude1: {dataType: Fmap, entities: simpleEntities},
	EPI:        {dataType: Fmap, entities: epiEntities},
}

// All returns every modality type in canonical order.
func All() []ModalityType { return slices.Clone(order) }

// Parse returns the modality type named s.
func Parse(s string) (ModalityType, bool) {
	t := ModalityType(s)
	_, ok := schemas[t]
	return t, ok
}

// IsDataType reports whether s names one of the data-type directories.
func IsDataType(s string) bool { return slices.Contains(DataTypes, s) }

func (t ModalityType) String() string { return string(t) }

// Entities returns the ordered entity keys allowed for t.
func (t ModalityType) Entities() []string { return slices.Clone(schemas[t].entities) }

// DataType returns the data type t is normally stored under.
func (t ModalityType) DataType() string { return schemas[t].dataType }

// Allows reports whether key is part of t's schema.
func (t ModalityType) Allows(key string) bool { return t.Index(key) >= 0 }

// Index returns the position of key in t's entity order, or -1.
func (t ModalityType) Index(key string) int { return slices.Index(schemas[t].entities, key) }
