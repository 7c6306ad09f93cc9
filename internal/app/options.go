package app

import (
	"github.com/pokearena/scoresync/internal/adapters/repository"
	"github.com/pokearena/scoresync/internal/domain/replay"
	"github.com/pokearena/scoresync/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the score store backing the service.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSharedToken sets the token that authenticates name-scheme
// submissions and admin operations.
func WithSharedToken(token string) Option {
	return func(s *Service) {
		s.sharedToken = token
	}
}

// WithPolicy sets the submission validation policy.
func WithPolicy(p replay.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithQueueSize sets the bulk queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of merge workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
