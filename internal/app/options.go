package service

import (
	"github.com/okian/bidsify/internal/domain/dedupe"
	"github.com/okian/bidsify/internal/domain/metadata"
	"github.com/okian/bidsify/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount overrides options.n_cores.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize overrides options.queue_size.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.runID = id
		}
	}
}

// WithHeaderFunc sets the image header reader used for SliceTiming.
func WithHeaderFunc(fn metadata.HeaderFunc) Option {
	return func(s *Service) {
		s.header = fn
	}
}

// WithDeduper replaces the in-memory unit claim set.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithKeepEventLogs leaves behavioural logs next to their TSVs.
func WithKeepEventLogs(keep bool) Option {
	return func(s *Service) {
		s.keepLogs = keep
	}
}
