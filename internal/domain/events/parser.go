// Package events converts Presentation stimulus logs into BIDS event tables
// synchronised to the first scanner pulse.
package events

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
)

// Log times and durations are stored in tenths of milliseconds.
const ticksPerSecond = 10000.0

// State is the position of a Parser in the conversion pipeline.
type State int

const (
	Unloaded State = iota
	Loaded
	PulseLocated
	Rebased
	Partitioned
	Written
)

var stateNames = [...]string{"unloaded", "loaded", "pulse_located", "rebased", "partitioned", "written"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Event is one row of the output table.
type Event struct {
	Onset     float64
	Duration  float64
	Weight    float64
	TrialType string
}

// Parser walks one log through the conversion states. A failed step
// leaves the state unchanged; a Parser is not reused across logs.
type Parser struct {
	conds     []Condition
	pulse     Code
	eventType string

	state     State
	rows      []Row
	pulseTime float64
	events    []Event
	warnings  []string
}

// NewParser validates cfg and returns a Parser in the Unloaded state.
func NewParser(cfg TaskConfig) (*Parser, error) {
	conds, err := cfg.Conditions()
	if err != nil {
		return nil, err
	}
	pulse, err := cfg.Pulse()
	if err != nil {
		return nil, err
	}
	return &Parser{conds: conds, pulse: pulse, eventType: cfg.EventType}, nil
}

// State returns the current state.
func (p *Parser) State() State { return p.state }

// Warnings returns the non-fatal issues seen so far.
func (p *Parser) Warnings() []string { return p.warnings }

// Events returns the partitioned events, sorted by onset.
func (p *Parser) Events() []Event { return p.events }

// Load reads the log rows.
func (p *Parser) Load(r io.Reader) error {
	if err := p.expect(Unloaded); err != nil {
		return err
	}
	rows, err := ReadLog(r)
	if err != nil {
		return err
	}
	p.rows = rows
	p.state = Loaded
	return nil
}

// LocatePulse finds the first row carrying the pulse code.
func (p *Parser) LocatePulse() error {
	if err := p.expect(Loaded); err != nil {
		return err
	}
	i := slices.IndexFunc(p.rows, func(r Row) bool { return r.Code.Equal(p.pulse) })
	if i < 0 {
		return dataErr(ErrNoPulse, "pulse code %s", p.pulse)
	}
	p.pulseTime = p.rows[i].Time
	p.state = PulseLocated
	return nil
}

// Rebase converts times to seconds relative to the pulse. Rows logged
// before the pulse are dropped, as are rows of other event types when the
// config filters on one.
func (p *Parser) Rebase() error {
	if err := p.expect(PulseLocated); err != nil {
		return err
	}
	kept := p.rows[:0]
	for _, r := range p.rows {
		r.Time = (r.Time - p.pulseTime) / ticksPerSecond
		r.Duration /= ticksPerSecond
		if r.Time < 0 {
			continue
		}
		if p.eventType != "" && r.EventType != p.eventType {
			continue
		}
		kept = append(kept, r)
	}
	p.rows = kept
	p.state = Rebased
	return nil
}

// Partition assigns rows to conditions and sorts the result by onset.
func (p *Parser) Partition() error {
	if err := p.expect(Rebased); err != nil {
		return err
	}
	var events []Event
	for _, c := range p.conds {
		var subset []Row
		for _, r := range p.rows {
			if c.Spec.Match(r.Code) {
				subset = append(subset, r)
			}
		}
		if len(subset) == 0 {
			return &NoMatchingRowsError{Condition: c.Name, Spec: c.Spec}
		}

		durations, err := p.durations(c, subset)
		if err != nil {
			return err
		}
		for i, r := range subset {
			events = append(events, Event{
				Onset:     r.Time,
				Duration:  durations[i],
				Weight:    1,
				TrialType: c.Name,
			})
		}
	}
	slices.SortStableFunc(events, func(a, b Event) int { return cmp.Compare(a.Onset, b.Onset) })
	p.events = events
	p.state = Partitioned
	return nil
}

func (p *Parser) durations(c Condition, subset []Row) ([]float64, error) {
	out := make([]float64, len(subset))
	if c.Duration != nil {
		for i := range out {
			out[i] = *c.Duration
		}
		return out, nil
	}

	missing := 0
	for _, r := range subset {
		if math.IsNaN(r.Duration) {
			missing++
		}
	}
	if missing > 1 {
		return nil, &AmbiguousDurationError{Condition: c.Name, Missing: missing}
	}
	if missing == 1 {
		p.warnings = append(p.warnings, fmt.Sprintf("condition %q: one missing duration written as 0", c.Name))
	}
	for i, r := range subset {
		if math.IsNaN(r.Duration) {
			continue
		}
		out[i] = math.Round(r.Duration*100) / 100
	}
	return out, nil
}

// WriteTSV serialises the events.
func (p *Parser) WriteTSV(w io.Writer) error {
	if err := p.expect(Partitioned); err != nil {
		return err
	}
	if err := WriteTSV(w, p.events); err != nil {
		return err
	}
	p.state = Written
	return nil
}

// Run drives the parser from Unloaded to Written.
func (p *Parser) Run(r io.Reader, w io.Writer) error {
	steps := []func() error{
		func() error { return p.Load(r) },
		p.LocatePulse,
		p.Rebase,
		p.Partition,
		func() error { return p.WriteTSV(w) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) expect(s State) error {
	if p.state != s {
		return fmt.Errorf("%w: in %s, want %s", ErrInvalidState, p.state, s)
	}
	return nil
}
