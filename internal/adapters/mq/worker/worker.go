// Package worker runs conversion units from the queue on a bounded pool.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/bidsify/internal/domain/model"
	"github.com/okian/bidsify/pkg/logger"
	"github.com/okian/bidsify/pkg/metrics"
)

// Unit abstracts what workers read off the queue.
type Unit = model.Unit

// Processor converts one unit. Units are independent; a Processor must be
// safe for concurrent use across units.
type Processor interface {
	Process(ctx context.Context, u Unit) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, u Unit) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, u Unit) error { return f(ctx, u) }

// Queue defines how workers receive units.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Unit
}

// Worker processes units using the provided Processor.
type Worker interface {
	// Run processes units until the queue is drained or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the unit in progress.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string
	active    *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		active:    &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	units := w.queue.Dequeue(ctx)
	for {
		select {
		case <-w.shutdown:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case u, ok := <-units:
			if !ok {
				return
			}
			if err := w.processUnit(ctx, u); err != nil {
				w.logger.Error(ctx, "error processing unit", logger.String("unit", u.Key()), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after the unit in progress.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) processUnit(ctx context.Context, u Unit) (err error) {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "panic")
			err = fmt.Errorf("panic converting %s: %v", u.Key(), r)
		}
	}()

	if err := w.processor.Process(ctx, u); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "unit_error")
		return fmt.Errorf("unit %s: %w", u.Key(), err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses all CPUs.
func NewPool(workerCount int, queue Queue, processor Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	active := &atomic.Int64{}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, processor, WithName("worker-"+strconv.Itoa(i)))
		w.active = active
		pool.workers[i] = w
	}
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned, which happens once the
// queue is closed and drained or ctx is canceled.
func (p *Pool) Wait(ctx context.Context) error {
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker did not finish", logger.Int("worker_id", i))
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	return p.Wait(ctx)
}

// Stop signals every worker to return after its current unit.
func (p *Pool) Stop(ctx context.Context) {
	for _, w := range p.workers {
		_ = w.Shutdown(ctx)
	}
}
