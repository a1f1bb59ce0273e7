// Package coordinator implements Coordinator: it owns the Tailer,
// ExecutionWorker pool, and checkpoint loop for one cluster, starting
// them only while LeaderOracle reports leadership and stopping them
// (finishing any in-flight handler first) the moment it doesn't, using
// a Start/Stop/sync.Once shutdown shape.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ziyaddin/venice/internal/leader"
	"github.com/ziyaddin/venice/internal/queue"
	"github.com/ziyaddin/venice/internal/tailer"
	"github.com/ziyaddin/venice/internal/watermark"
)

// Runner is the subset of worker.Pool's API the Coordinator drives.
type Runner interface {
	Run(ctx context.Context) error
}

// Config controls the checkpoint cadence.
type Config struct {
	ClusterName        string
	CheckpointInterval time.Duration
}

// Coordinator is the top-level scheduling loop: it gates Tailer and
// ExecutionWorker activity on leadership and periodically advances the
// persisted offset to the checkpoint-safe value.
type Coordinator struct {
	cfg      Config
	tailer   *tailer.Tailer
	pool     Runner
	oracle   leader.Oracle
	registry *queue.Registry
	wm       watermark.Store
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config, t *tailer.Tailer, pool Runner, oracle leader.Oracle, registry *queue.Registry, wm watermark.Store, logger *slog.Logger) *Coordinator {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 5 * time.Second
	}
	return &Coordinator{
		cfg:      cfg,
		tailer:   t,
		pool:     pool,
		oracle:   oracle,
		registry: registry,
		wm:       wm,
		logger:   logger.With("component", "Coordinator", "cluster", cfg.ClusterName),
		stopCh:   make(chan struct{}),
	}
}

// Start is a blocking call: it watches leadership and, while leader,
// runs the Tailer, worker pool, and checkpoint loop. It returns once ctx
// is canceled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.oracle.Watch(ctx)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var active context.CancelFunc
	running := false

	stopActive := func() {
		if running {
			active()
			running = false
		}
	}
	defer stopActive()

	checkLeadership := func() {
		isLeader := c.oracle.IsLeader()
		switch {
		case isLeader && !running:
			c.logger.Info("acquired leadership, starting consumption")
			var runCtx context.Context
			runCtx, active = context.WithCancel(ctx)
			running = true
			c.runActive(runCtx)
		case !isLeader && running:
			c.logger.Info("lost leadership, stopping consumption")
			stopActive()
		}
	}
	checkLeadership()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			checkLeadership()
		}
	}
}

// runActive starts the Tailer, worker pool, and checkpoint loop for as
// long as runCtx is alive. It does not block the caller.
func (c *Coordinator) runActive(runCtx context.Context) {
	if err := c.tailer.Start(runCtx); err != nil {
		c.logger.Error("tailer refused to start", "error", err)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.pool.Run(runCtx); err != nil {
			c.logger.Error("worker pool exited with error", "error", err)
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.checkpointLoop(runCtx)
	}()
}

// checkpointLoop periodically advances the persisted offset to the
// checkpoint-safe value: the lower of (a) the highest offset the
// Tailer has actually delivered, and (b) one below the lowest offset
// still pending at the head of any StoreQueue. While offset 0 itself is
// pending nothing is written. This never claims a record that has not
// yet been durably applied.
func (c *Coordinator) checkpointLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.checkpointOnce()
			return
		case <-ticker.C:
			c.checkpointOnce()
		}
	}
}

func (c *Coordinator) checkpointOnce() {
	readOffset, hasRead := c.tailer.LastReadOffset()
	if !hasRead {
		return
	}

	safe := readOffset
	if minPending, ok := c.registry.MinPendingOffset(); ok {
		if minPending == 0 {
			return
		}
		if minPending-1 < safe {
			safe = minPending - 1
		}
	}

	if err := c.wm.WriteOffset(c.cfg.ClusterName, safe); err != nil {
		c.logger.Error("failed to persist checkpoint offset", "offset", safe, "error", err)
	}

	c.registry.Reap()
}

// Stop signals the Coordinator to stop and waits for all of its
// goroutines to finish.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.tailer.Stop()
	c.wg.Wait()
}
