// Package tailer implements Tailer: it reads the admin log from the
// persisted watermark forward, decodes each record, and routes it into
// the right StoreQueue, using the same shutdown-channel shape a
// WAL-streaming follower uses. It does not reconnect or back off: an
// error from the stream ends tailing.
package tailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ziyaddin/venice/internal/admin"
	"github.com/ziyaddin/venice/internal/adminlog"
	"github.com/ziyaddin/venice/internal/codec"
	"github.com/ziyaddin/venice/internal/queue"
	"github.com/ziyaddin/venice/internal/watermark"
)

// Notifier is the subset of worker.Pool's API Tailer needs: a way to
// wake up a store's worker once new work has been pushed for it.
type Notifier interface {
	Notify(store string)
}

// LogRewindError is returned by Start when the LogStream's retained
// minimum offset exceeds the persisted watermark: the upstream log has
// retention-expired past our checkpoint, and this core cannot safely
// infer which records were skipped. Per the resolved Open Question, the
// Coordinator must not start the Tailer in this state; an operator must
// explicitly reset the watermark first.
type LogRewindError struct {
	PersistedOffset uint64
	LogMinOffset    uint64
}

func (e *LogRewindError) Error() string {
	return fmt.Sprintf("tailer: log retention (min offset %d) has advanced past the persisted watermark (%d); refusing to start", e.LogMinOffset, e.PersistedOffset)
}

// Tailer streams the admin log and fans decoded operations out to
// per-store queues.
type Tailer struct {
	cluster  string
	log      adminlog.LogStream
	codec    *codec.Codec
	registry *queue.Registry
	notifier Notifier
	wm       watermark.Store
	logger   *slog.Logger

	mu             sync.Mutex
	lastReadOffset uint64
	hasRead        bool

	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

func New(cluster string, log adminlog.LogStream, c *codec.Codec, registry *queue.Registry, notifier Notifier, wm watermark.Store, logger *slog.Logger) *Tailer {
	return &Tailer{
		cluster:      cluster,
		log:          log,
		codec:        c,
		registry:     registry,
		notifier:     notifier,
		wm:           wm,
		logger:       logger.With("component", "Tailer", "cluster", cluster),
		shutdownChan: make(chan struct{}),
	}
}

// Start validates there is no log-rewind gap, then begins tailing from
// the persisted offset in a background goroutine. Returns a
// *LogRewindError without starting if retention has expired past the
// watermark.
func (t *Tailer) Start(ctx context.Context) error {
	persisted, found, err := t.wm.ReadOffset(t.cluster)
	if err != nil {
		return fmt.Errorf("tailer: read persisted offset: %w", err)
	}

	startOffset := uint64(0)
	if found {
		if minOffset := t.log.MinOffset(); minOffset > persisted {
			return &LogRewindError{PersistedOffset: persisted, LogMinOffset: minOffset}
		}
		startOffset = persisted + 1
	}

	t.wg.Add(1)
	go t.run(ctx, startOffset)
	return nil
}

func (t *Tailer) run(ctx context.Context, startOffset uint64) {
	defer t.wg.Done()

	records, errc := t.log.ReadFrom(ctx, startOffset)
	for {
		select {
		case <-t.shutdownChan:
			return
		case <-ctx.Done():
			return
		case err, ok := <-errc:
			if ok && err != nil {
				t.logger.Error("log stream reported an error", "error", err)
			}
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			t.handleRecord(rec)
		}
	}
}

func (t *Tailer) handleRecord(rec adminlog.Record) {
	op, err := t.codec.Decode(rec.Data)
	if err != nil {
		if admin.IsMalformed(err) {
			t.logger.Error("dropping malformed admin log record", "offset", rec.Offset, "error", err)
			t.markRead(rec.Offset)
			return
		}
		t.logger.Error("unexpected decode error, dropping record", "offset", rec.Offset, "error", err)
		t.markRead(rec.Offset)
		return
	}

	t.registry.GetOrCreate(op.StoreName).Push(admin.Wrapper{
		Operation: op,
		Offset:    rec.Offset,
	})
	t.markRead(rec.Offset)
	if t.notifier != nil {
		t.notifier.Notify(op.StoreName)
	}
}

func (t *Tailer) markRead(offset uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastReadOffset = offset
	t.hasRead = true
}

// LastReadOffset reports the highest log offset handed off so far. The
// Coordinator factors this into the checkpoint-safe offset alongside
// each StoreQueue's head, so a checkpoint never claims a record the
// Tailer has not actually delivered yet.
func (t *Tailer) LastReadOffset() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastReadOffset, t.hasRead
}

// Stop signals the tailing goroutine to exit and waits for it to finish.
func (t *Tailer) Stop() {
	select {
	case <-t.shutdownChan:
	default:
		close(t.shutdownChan)
	}
	t.wg.Wait()
}
