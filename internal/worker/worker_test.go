package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziyaddin/venice/internal/admin"
	"github.com/ziyaddin/venice/internal/backend"
	"github.com/ziyaddin/venice/internal/dispatch"
	"github.com/ziyaddin/venice/internal/metrics"
	"github.com/ziyaddin/venice/internal/queue"
	"github.com/ziyaddin/venice/internal/watermark"
)

func newTestPool(t *testing.T, b *backend.Fake, cfg Config) (*Pool, *queue.Registry, watermark.Store) {
	registry := queue.NewRegistry()
	wm := watermark.NewMemoryStore()
	m, err := metrics.New(t.Name())
	require.NoError(t, err)
	table := dispatch.New(b, admin.RoleParent)
	if cfg.ClusterName == "" {
		cfg.ClusterName = "c0"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 2
	}
	p := New(cfg, registry, table, wm, m, slog.Default())
	return p, registry, wm
}

func TestPool_HappyPath_AdvancesWatermark(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	p, registry, wm := newTestPool(t, b, Config{})

	owner := "bob"
	registry.GetOrCreate("store-a").Push(admin.Wrapper{
		Offset: 0,
		Operation: admin.Operation{
			Kind:        admin.KindSetStoreOwner,
			ClusterName: "c0",
			StoreName:   "store-a",
			ExecutionID: 1,
			Payload:     admin.Payload{Owner: &owner},
		},
	})
	p.Notify("store-a")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		execID, found, err := wm.ReadExecutionID("c0", "store-a")
		return err == nil && found && execID == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPool_DuplicateExecutionID_IsSkippedNotDispatched(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	p, registry, wm := newTestPool(t, b, Config{})
	require.NoError(t, wm.WriteExecutionID("c0", "store-a", 5))

	dispatchCount := 0
	b.OnCall = func(method, cluster, store string, attempt int) error {
		if method == "SetStoreWriteability" {
			dispatchCount++
		}
		return nil
	}

	registry.GetOrCreate("store-a").Push(admin.Wrapper{
		Offset: 0,
		Operation: admin.Operation{
			Kind:        admin.KindDisableStoreWrite,
			ClusterName: "c0",
			StoreName:   "store-a",
			ExecutionID: 3, // below the persisted watermark of 5
		},
	})
	p.Notify("store-a")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go p.Run(ctx)
	<-ctx.Done()

	assert.Equal(t, 0, dispatchCount, "a duplicate execution id must never reach the backend")
}

func TestPool_RetriableFailure_RetriesSameOperation(t *testing.T) {
	b := backend.NewFake()
	require.NoError(t, b.AddStore("c0", "store-a", "alice", 1))
	p, registry, wm := newTestPool(t, b, Config{BackoffBase: 5 * time.Millisecond, BackoffMax: 20 * time.Millisecond})

	fail := true
	b.OnCall = func(method, cluster, store string, attempt int) error {
		if method == "SetStoreWriteability" && fail {
			fail = false
			return errors.New("transient")
		}
		return nil
	}

	registry.GetOrCreate("store-a").Push(admin.Wrapper{
		Offset: 0,
		Operation: admin.Operation{
			Kind:        admin.KindDisableStoreWrite,
			ClusterName: "c0",
			StoreName:   "store-a",
			ExecutionID: 1,
		},
	})
	p.Notify("store-a")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		execID, found, _ := wm.ReadExecutionID("c0", "store-a")
		return found && execID == 1
	}, time.Second, 10*time.Millisecond, "the operation must eventually succeed after the transient failure clears")
}

func TestPool_UnsupportedKind_IsIgnoredSuccess(t *testing.T) {
	b := backend.NewFake()
	p, registry, wm := newTestPool(t, b, Config{})

	registry.GetOrCreate("store-a").Push(admin.Wrapper{
		Offset: 0,
		Operation: admin.Operation{
			Kind:        admin.KindUnknown,
			ClusterName: "c0",
			StoreName:   "store-a",
			ExecutionID: 9,
		},
	})
	p.Notify("store-a")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		execID, found, _ := wm.ReadExecutionID("c0", "store-a")
		return found && execID == 9
	}, 500*time.Millisecond, 10*time.Millisecond, "an unsupported kind must still advance the watermark")
}
