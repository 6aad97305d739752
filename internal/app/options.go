package service

import (
	"time"

	"github.com/okian/strata/internal/adapters/repository"
	"github.com/okian/strata/internal/domain/correlation"
	"github.com/okian/strata/internal/domain/suggest"
	"github.com/okian/strata/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the section repository. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithEngine sets the correlation engine shared by sync and async sweeps.
func WithEngine(e *correlation.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithSuggester sets the tie-point suggester. Defaults to a correlation
// suggester on the service's engine.
func WithSuggester(sg suggest.Suggester) Option {
	return func(s *Service) {
		if sg != nil {
			s.suggester = sg
		}
	}
}

// WithWorkerCount sets the number of job workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithJobTimeout caps one asynchronous job. Zero disables the cap.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.jobTimeout = d
		}
	}
}

// WithJobRetention sets how many finished jobs stay queryable.
func WithJobRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobRetention = n
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
