// Package report collects per-unit outcomes and persists the run report
// as YAML.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/bidsify/internal/domain/types"
)

// ErrWriteReport wraps failures to persist a report.
var ErrWriteReport = errors.New("write report")

// Collector gathers unit reports from concurrent workers.
type Collector struct {
	mu    sync.Mutex
	units []types.UnitReport
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector { return &Collector{} }

// Add records one unit outcome.
func (c *Collector) Add(u types.UnitReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = append(c.units, u)
}

// Units returns the recorded outcomes sorted by subject, then session.
func (c *Collector) Units() []types.UnitReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.UnitReport, len(c.units))
	copy(out, c.units)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Session < out[j].Session
	})
	return out
}

// Write stores r at path, creating parent directories.
func Write(path string, r types.RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteReport, path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteReport, path, err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %s: %w", ErrWriteReport, path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %s: %w", ErrWriteReport, path, err)
	}
	return f.Close()
}

// Read loads a report written by Write.
func Read(path string) (types.RunReport, error) {
	var r types.RunReport
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read report %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decode report %s: %w", path, err)
	}
	return r, nil
}
