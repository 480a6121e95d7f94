// Package dedupe tracks which output units a run has already claimed, so
// raw directories that normalise to the same subject are converted once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records claimed unit keys to ensure at-most-once conversion.
type Deduper interface {
	// SeenAndRecord atomically checks if key was claimed and claims it if not.
	// Returns true if key was already claimed, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key, owner string) bool

	// Owner returns the source that claimed key first.
	Owner(ctx context.Context, key string) (string, bool)

	Size() int64
}

// inMemoryDeduper implements Deduper with a mutex-guarded map from unit key
// to the source directory that claimed it.
type inMemoryDeduper struct {
	mu     sync.Mutex
	owners map[string]string
	hint   int
	size   atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.owners = make(map[string]string, d.hint)
	return d
}

// SeenAndRecord atomically checks if key was claimed and claims it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key, owner string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.owners[key]; exists {
		return true
	}
	d.owners[key] = owner
	d.size.Add(1)
	return false
}

// Owner returns the source that claimed key first.
func (d *inMemoryDeduper) Owner(_ context.Context, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	owner, ok := d.owners[key]
	return owner, ok
}

// Size returns the current number of claims.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
