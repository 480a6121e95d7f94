// Package types contains the run report types shared across the application.
package types

import "time"

// UnitStatus is the outcome of converting one unit.
type UnitStatus string

const (
	StatusConverted UnitStatus = "converted"
	StatusSkipped   UnitStatus = "skipped"
	StatusFailed    UnitStatus = "failed"
)

// UnitReport describes one subject or subject/session unit.
type UnitReport struct {
	Subject     string     `yaml:"subject" json:"subject"`
	Session     string     `yaml:"session,omitempty" json:"session,omitempty"`
	Source      string     `yaml:"source" json:"source"`
	Status      UnitStatus `yaml:"status" json:"status"`
	Reason      string     `yaml:"reason,omitempty" json:"reason,omitempty"`
	Renamed     int        `yaml:"renamed" json:"renamed"`
	Skipped     int        `yaml:"skipped" json:"skipped"`
	Sidecars    int        `yaml:"sidecars" json:"sidecars"`
	EventFiles  []string   `yaml:"event_files,omitempty" json:"event_files,omitempty"`
	Unallocated []string   `yaml:"unallocated,omitempty" json:"unallocated,omitempty"`
	Warnings    []string   `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Seconds     float64    `yaml:"seconds" json:"seconds"`
}

// RunReport summarises a whole conversion run.
type RunReport struct {
	RunID    string       `yaml:"run_id" json:"run_id"`
	Version  string       `yaml:"version" json:"version"`
	RawDir   string       `yaml:"raw_dir" json:"raw_dir"`
	OutDir   string       `yaml:"out_dir" json:"out_dir"`
	Deface   bool         `yaml:"deface" json:"deface"`
	Started  time.Time    `yaml:"started" json:"started"`
	Finished time.Time    `yaml:"finished" json:"finished"`
	Units    []UnitReport `yaml:"units" json:"units"`
}

// Failed returns the number of failed units.
func (r RunReport) Failed() int { return r.Count(StatusFailed) }

// Count returns the number of units with status s.
func (r RunReport) Count(s UnitStatus) int {
	n := 0
	for _, u := range r.Units {
		if u.Status == s {
			n++
		}
	}
	return n
}
