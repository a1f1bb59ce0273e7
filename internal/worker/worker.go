// Package worker implements the ExecutionWorker pool: a fixed number of
// goroutines that drain StoreQueues, each store processed with strict
// FIFO ordering and at most one worker leased to it at a time, bounded
// with a semaphore channel plus a sync.WaitGroup the same way a
// compaction manager bounds concurrent compactions.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ziyaddin/venice/internal/admin"
	"github.com/ziyaddin/venice/internal/dispatch"
	"github.com/ziyaddin/venice/internal/metrics"
	"github.com/ziyaddin/venice/internal/queue"
	"github.com/ziyaddin/venice/internal/watermark"
)

// Config controls pool size and retry backoff.
type Config struct {
	PoolSize     int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	ClusterName  string
}

// Pool is the ExecutionWorker pool. Notify tells it a store has new
// pending work; it is safe to call Notify far more often than work is
// actually available, since it is a non-blocking best-effort wakeup.
type Pool struct {
	cfg        Config
	registry   *queue.Registry
	dispatcher *dispatch.Table
	wm         watermark.Store
	metrics    *metrics.Metrics
	classifier *admin.FailureClassifier
	logger     *slog.Logger

	notify chan string
	sem    chan struct{}
}

func New(cfg Config, registry *queue.Registry, dispatcher *dispatch.Table, wm watermark.Store, m *metrics.Metrics, logger *slog.Logger) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	return &Pool{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		wm:         wm,
		metrics:    m,
		classifier: admin.NewFailureClassifier(),
		logger:     logger.With("component", "ExecutionWorker"),
		notify:     make(chan string, 4096),
		sem:        make(chan struct{}, cfg.PoolSize),
	}
}

// Notify signals that store has a newly pushed operation. Non-blocking:
// if the notify buffer is full, the store will still get picked up on
// the next periodic sweep.
func (p *Pool) Notify(store string) {
	select {
	case p.notify <- store:
	default:
	}
}

// Run drains notifications and periodic sweeps until ctx is canceled,
// fanning work out across cfg.PoolSize concurrently-leased stores via
// errgroup, the bounded-fan-out pattern named in the concurrency design.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-gctx.Done():
			return g.Wait()
		case store := <-p.notify:
			p.dispatchStore(g, gctx, store)
		case <-ticker.C:
			for _, store := range p.registry.Stores() {
				p.dispatchStore(g, gctx, store)
			}
		}
	}
}

func (p *Pool) dispatchStore(g *errgroup.Group, ctx context.Context, store string) {
	q := p.registry.GetOrCreate(store)
	if !q.TryLease() {
		return
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		q.Release()
		return
	}

	g.Go(func() error {
		defer func() { <-p.sem }()
		defer q.Release()
		p.drainStore(ctx, store, q)
		return nil
	})
}

// drainStore executes every operation at the head of q in order until
// the queue is empty, a Retriable failure has waited out its backoff
// (leaving the operation at the head for the next lease), or a Fatal
// failure ends the drain. A Fatal failure also leaves the operation at
// the head; the store is not marked as halted, so the pool's next sweep
// leases it again and dispatches the same operation once more.
func (p *Pool) drainStore(ctx context.Context, store string, q *queue.StoreQueue) {
	for {
		if ctx.Err() != nil {
			return
		}
		w, ok := q.Peek()
		if !ok {
			return
		}

		if p.isDuplicate(w.Operation) {
			p.metrics.RecordDuplicateSkip()
			q.Pop()
			continue
		}

		start := time.Now()
		err := p.dispatcher.Dispatch(w.Operation)
		p.metrics.RecordDispatch(w.Operation.Kind)
		p.metrics.RecordLatency(w.Operation.Kind, time.Since(start))

		switch p.classifier.Classify(err) {
		case admin.ClassSuccess, admin.ClassIgnoredSuccess:
			p.advanceWatermark(w.Operation)
			q.Pop()
		case admin.ClassMalformed:
			p.logger.Error("malformed operation, advancing past it", "store", store, "offset", w.Offset, "error", err)
			p.metrics.RecordFailure(admin.ClassMalformed)
			p.advanceWatermark(w.Operation)
			q.Pop()
		case admin.ClassFatal:
			p.logger.Error("fatal dispatch error, stopping store", "store", store, "offset", w.Offset, "error", err)
			p.metrics.RecordFailure(admin.ClassFatal)
			return
		case admin.ClassRetriable:
			p.metrics.RecordFailure(admin.ClassRetriable)
			w.Attempts++
			q.Bump(w)
			p.logger.Warn("retriable dispatch error, backing off", "store", store, "offset", w.Offset, "attempt", w.Attempts, "error", err)
			p.sleepBackoff(ctx, w.Attempts)
			return
		}
	}
}

func (p *Pool) isDuplicate(op admin.Operation) bool {
	last, found, err := p.wm.ReadExecutionID(p.cfg.ClusterName, op.StoreName)
	if err != nil || !found {
		return false
	}
	return op.ExecutionID <= last
}

func (p *Pool) advanceWatermark(op admin.Operation) {
	if err := p.wm.WriteExecutionID(p.cfg.ClusterName, op.StoreName, op.ExecutionID); err != nil {
		p.logger.Error("failed to persist execution id watermark", "store", op.StoreName, "execId", op.ExecutionID, "error", err)
	}
}

func (p *Pool) sleepBackoff(ctx context.Context, attempt int) bool {
	base := p.cfg.BackoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := p.cfg.BackoffMax
	if max <= 0 {
		max = 30 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay > max {
		delay = max
	}

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
