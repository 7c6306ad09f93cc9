// Package app provides the core business service that implements the
// dependencies required by the HTTP API.
package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	eventqueue "github.com/pokearena/scoresync/internal/adapters/mq/queue"
	workerpool "github.com/pokearena/scoresync/internal/adapters/mq/worker"
	"github.com/pokearena/scoresync/internal/adapters/repository"
	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/ranking"
	"github.com/pokearena/scoresync/internal/domain/replay"
	"github.com/pokearena/scoresync/internal/domain/signature"
	"github.com/pokearena/scoresync/pkg/logger"
	"github.com/pokearena/scoresync/pkg/metrics"
)

// ErrBackpressure reports a full bulk queue.
var ErrBackpressure = errors.New("backpressure")

// Service runs the submission pipeline: authenticate, replay-check,
// merge, and the read-side views over the score store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store repository.Store
	queue *eventqueue.InMemoryQueue
	pool  *workerpool.Pool

	// Configuration
	sharedToken string
	policy      replay.Policy
	queueSize   int
	workerCount int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a Service with default configuration: an in-memory
// store, default policy bounds, and a small worker pool.
func New(opts ...Option) *Service {
	s := &Service{
		policy:      replay.DefaultPolicy(),
		queueSize:   10_000,
		workerCount: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory score store")
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "score sync service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping score sync service...")

	if s.pool != nil {
		s.pool.Stop()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "score sync service stopped")
}

// Submit runs the full pipeline for one submission and returns the
// resulting aggregate. Authentication and the replay check short-circuit
// before validation and merge, in that order. A duplicate returns the
// current aggregate with replay.ErrDuplicate.
func (s *Service) Submit(ctx context.Context, sub model.Submission, token string) (model.Aggregate, error) {
	if err := s.authenticate(ctx, sub, token); err != nil {
		return model.Aggregate{}, err
	}
	if err := s.policy.Validate(sub); err != nil {
		return model.Aggregate{}, err
	}

	agg, err := s.store.Apply(ctx, sub)
	switch {
	case err == nil:
		metrics.RecordSubmissionAccepted()
		s.logger.Debug(ctx, "submission applied",
			logger.String("identity", sub.Identity()),
			logger.String("mode", string(sub.Mode)),
			logger.Int64("marker", sub.Marker),
		)
	case errors.Is(err, replay.ErrDuplicate):
		metrics.RecordSubmissionDuplicate()
	}
	return agg, err
}

// SubmitAsync authenticates and validates a submission, then queues it
// for background merge. Used by the bulk ingestion path; the event log
// keeps retried deliveries idempotent.
func (s *Service) SubmitAsync(ctx context.Context, sub model.Submission, token string) error {
	if err := s.authenticate(ctx, sub, token); err != nil {
		return err
	}
	if err := s.policy.Validate(sub); err != nil {
		return err
	}
	if !s.queue.Enqueue(ctx, sub) {
		return ErrBackpressure
	}
	return nil
}

// authenticate resolves the right credential for the submission's scheme
// and verifies it. Name-scheme submissions carry the shared token;
// device-scheme submissions carry a per-device HMAC tag. A first-seen
// device may self-register when its secret candidate passes the format
// policy.
func (s *Service) authenticate(ctx context.Context, sub model.Submission, token string) error {
	start := time.Now()
	defer func() {
		metrics.RecordVerifyLatency(float64(time.Since(start).Milliseconds()))
	}()

	if sub.Scheme != model.SchemeDevice {
		return signature.VerifyToken(token, s.sharedToken)
	}

	if sub.UID == "" {
		return signature.ErrUnknownDevice
	}
	secret, err := s.store.DeviceSecret(ctx, sub.UID)
	if errors.Is(err, repository.ErrNotFound) {
		if sub.Secret == "" {
			return signature.ErrUnknownDevice
		}
		if !signature.ValidSecret(sub.Secret) {
			return signature.ErrBadSecret
		}
		secret, err = s.store.RegisterDevice(ctx, sub.UID, sub.Secret)
		if err == nil {
			s.logger.Info(ctx, "device self-registered", logger.String("uid", sub.UID))
		}
	}
	if err != nil {
		return err
	}
	return signature.Verify(secret, sub)
}

// Board returns the merged, ranked leaderboard across both identity
// schemes, capped at limit entries when limit > 0.
func (s *Service) Board(ctx context.Context, limit int) ([]ranking.Entry, error) {
	names, err := s.store.List(ctx, model.SchemeName)
	if err != nil {
		return nil, err
	}
	devices, err := s.store.List(ctx, model.SchemeDevice)
	if err != nil {
		return nil, err
	}

	merged := ranking.Merge(toRows(names), toRows(devices))
	entries := ranking.Rank(merged)
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// Scores returns the raw aggregate rows for one scheme, ordered by the
// explicit rank column when present, then by key for determinism.
func (s *Service) Scores(ctx context.Context, scheme model.Scheme) ([]model.Aggregate, error) {
	rows, err := s.store.List(ctx, scheme)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Rank != rows[j].Rank {
			return rows[i].Rank < rows[j].Rank
		}
		return rows[i].Key < rows[j].Key
	})
	return rows, nil
}

// Reset clears one scheme's aggregates after checking the shared token.
func (s *Service) Reset(ctx context.Context, scheme model.Scheme, token string) error {
	if err := signature.VerifyToken(token, s.sharedToken); err != nil {
		return err
	}
	if err := s.store.Reset(ctx, scheme); err != nil {
		return err
	}
	s.logger.Info(ctx, "scheme reset", logger.String("scheme", string(scheme)))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.started {
		players := s.store.Count(ctx, model.SchemeName)
		devices := s.store.Count(ctx, model.SchemeDevice)
		stats["queueLength"] = s.queue.Len(ctx)
		stats["players"] = players
		stats["devices"] = devices

		metrics.UpdateQueueSize(s.queue.Len(ctx))
		metrics.UpdateTotalIdentities(string(model.SchemeName), players)
		metrics.UpdateTotalIdentities(string(model.SchemeDevice), devices)
	}
	return stats
}

func toRows(aggs []model.Aggregate) []ranking.Row {
	rows := make([]ranking.Row, len(aggs))
	for i, a := range aggs {
		rows[i] = ranking.Row{
			Player:    a.Player,
			Counters:  a.Counters,
			Team:      a.Team,
			UpdatedAt: a.UpdatedAt,
		}
	}
	return rows
}
