// Package worker runs the asynchronous projection pipeline: confirmed
// sessions are folded into division leaderboards and player stats.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/pkg/logger"
	"github.com/mkanda/torifuda/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
	maxProjectionAttempts   = 5
)

// Event abstracts what workers read off the queue.
type Event = model.ProjectionEvent

// Ranker folds one confirmed session into its division leaderboard.
type Ranker interface {
	Upsert(ctx context.Context, e Event) error
}

// StatsUpdater folds one confirmed session into the player's
// progression counters.
type StatsUpdater interface {
	Apply(ctx context.Context, e Event) error
}

// Queue defines how workers receive events and requeue failed ones.
type Queue interface {
	Enqueue(ctx context.Context, e Event) bool
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes projection events using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining events before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing projection events.
type InMemoryWorker struct {
	queue  Queue
	ranker Ranker
	stats  StatsUpdater
	name   string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, ranker Ranker, stats StatsUpdater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		ranker:   ranker,
		stats:    stats,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
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
	defer func() {
		close(w.done)
	}()

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}

			if err := w.processEvent(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing projection", logger.Error(err))
				w.requeue(ctx, event)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processEvent applies both projections for a single confirmed session.
// Each projection commits an applied-session marker inside its own
// versioned update, so redelivering the event after a partial failure
// never double-counts the half that already landed.
func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordProjectionLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.ranker.Upsert(ctx, event); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "ranking_error")
		w.logger.Error(ctx, "leaderboard projection failed",
			logger.String("sessionID", event.SessionID),
			logger.Error(err),
		)
		return fmt.Errorf("leaderboard projection for session %s: %w", event.SessionID, err)
	}

	if err := w.stats.Apply(ctx, event); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "stats_error")
		w.logger.Error(ctx, "stats projection failed",
			logger.String("sessionID", event.SessionID),
			logger.Error(err),
		)
		return fmt.Errorf("stats projection for session %s: %w", event.SessionID, err)
	}

	return nil
}

// requeue puts a failed event back on the queue for another delivery,
// up to maxProjectionAttempts total.
func (w *InMemoryWorker) requeue(ctx context.Context, event Event) {
	event.Attempts++
	if event.Attempts >= maxProjectionAttempts {
		metrics.RecordErrorByComponent("worker", "projection_dropped")
		w.logger.Error(ctx, "projection dropped after repeated failures",
			logger.String("sessionID", event.SessionID),
			logger.Int("attempts", event.Attempts),
		)
		return
	}
	if !w.queue.Enqueue(ctx, event) {
		metrics.RecordErrorByComponent("worker", "requeue_failed")
		w.logger.Error(ctx, "failed to requeue projection",
			logger.String("sessionID", event.SessionID),
		)
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, ranker Ranker, stats StatsUpdater) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			ranker,
			stats,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown gracefully shuts down the entire worker pool. Closing the
// queue ends each worker's dequeue stream once it drains, so the
// workers exit on their own and are only waited for here.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	metrics.UpdateWorkerActiveCount(0)

	return nil
}
