// Package model contains domain models passed between layers.
package model

import "path/filepath"

// Unit is one subject or subject/session directory converted as a whole.
// Units are independent of each other and may be processed concurrently.
type Unit struct {
	SubjectID string // canonical id without prefix, e.g. "01"
	SessionID string // empty when the subject has no session directories
	SourceDir string // raw directory holding the acquisitions
	OutDir    string // BIDS directory of the unit, e.g. <out>/sub-01/ses-1
}

// Subject returns the subject label, e.g. "sub-01".
func (u Unit) Subject() string { return "sub-" + u.SubjectID }

// Session returns the session label, e.g. "ses-1", or "" without sessions.
func (u Unit) Session() string {
	if u.SessionID == "" {
		return ""
	}
	return "ses-" + u.SessionID
}

// Key identifies the unit's output location and is unique within a run.
func (u Unit) Key() string {
	if u.SessionID == "" {
		return u.Subject()
	}
	return filepath.Join(u.Subject(), u.Session())
}

// StructuralEntities returns the entities implied by directory position.
func (u Unit) StructuralEntities() map[string]string {
	ents := map[string]string{"sub": u.SubjectID}
	if u.SessionID != "" {
		ents["ses"] = u.SessionID
	}
	return ents
}
