// Package worker drains the bulk submission queue into the score store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/replay"
	"github.com/pokearena/scoresync/pkg/logger"
	"github.com/pokearena/scoresync/pkg/metrics"
)

// poolShutdownTimeout bounds how long Stop waits for in-flight merges.
const poolShutdownTimeout = 30 * time.Second

// Applier merges one verified submission into the aggregate state.
// Satisfied by the repository stores.
type Applier interface {
	Apply(ctx context.Context, sub model.Submission) (model.Aggregate, error)
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Submission
}

// Worker processes queued submissions until shut down.
type Worker struct {
	queue   Queue
	applier Applier
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewWorker creates a single worker.
func NewWorker(q Queue, a Applier, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		applier:  a,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run drains the queue until ctx is canceled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case sub, ok := <-items:
			if !ok {
				return
			}
			w.processOne(ctx, sub)
		}
	}
}

// Shutdown stops the worker, waiting for the in-flight submission.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processOne merges a single submission. Duplicates and stale markers are
// expected under at-least-once delivery and are not failures.
func (w *Worker) processOne(ctx context.Context, sub model.Submission) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	_, err := w.applier.Apply(ctx, sub)
	switch {
	case err == nil:
		metrics.RecordSubmissionAccepted()
	case errors.Is(err, replay.ErrDuplicate):
		metrics.RecordSubmissionDuplicate()
		w.logger.Debug(ctx, "duplicate submission skipped",
			logger.String("identity", sub.Identity()),
			logger.Int64("marker", sub.Marker),
		)
	case errors.Is(err, replay.ErrStale):
		metrics.RecordSubmissionRejected("stale")
		w.logger.Debug(ctx, "stale submission skipped",
			logger.String("identity", sub.Identity()),
			logger.Int64("marker", sub.Marker),
		)
	default:
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "merge failed",
			logger.String("identity", sub.Identity()),
			logger.Error(err),
		)
	}
}

// Pool manages a set of workers draining one queue.
type Pool struct {
	workers []*Worker
	cancel  context.CancelFunc
}

// NewPool creates count workers over the queue and applier.
func NewPool(count int, q Queue, a Applier) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{workers: make([]*Worker, count)}
	for i := range p.workers {
		p.workers[i] = NewWorker(q, a, WithName("worker-"+strconv.Itoa(i)))
	}
	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Stop shuts all workers down, bounded by the pool shutdown timeout.
func (p *Pool) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), poolShutdownTimeout)
	defer cancel()

	for _, w := range p.workers {
		_ = w.Shutdown(ctx)
	}
	if p.cancel != nil {
		p.cancel()
	}
	metrics.UpdateWorkerCount(0)
}
