// Package leader implements LeaderOracle: the abstracted collaborator
// the Coordinator asks "am I allowed to execute right now". The real
// leadership-election algorithm is out of scope; this package only
// supplies a standalone always-leader oracle and a gRPC health-polling
// oracle for multi-process deployments, using the same dial/poll
// pattern a replication manager uses to watch follower health.
package leader

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Oracle answers whether this process currently holds leadership (or,
// for a role that doesn't need exclusivity, whether it is active at
// all).
type Oracle interface {
	IsLeader() bool
	// Watch blocks until ctx is canceled, periodically refreshing the
	// oracle's view of leadership.
	Watch(ctx context.Context)
	Close() error
}

// StaticOracle always reports leader = true. This is the oracle for the
// single-process standalone binary and most tests.
type StaticOracle struct{}

func NewStaticOracle() *StaticOracle { return &StaticOracle{} }

func (StaticOracle) IsLeader() bool        { return true }
func (StaticOracle) Watch(ctx context.Context) { <-ctx.Done() }
func (StaticOracle) Close() error          { return nil }

// HealthPollOracle polls a remote process's grpc_health_v1.Health/Check
// RPC on an interval and treats SERVING as leadership. Used when the
// leadership-election service runs out-of-process.
type HealthPollOracle struct {
	addr     string
	interval time.Duration
	logger   *slog.Logger

	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	leader  atomic.Bool
}

func NewHealthPollOracle(addr string, interval time.Duration, logger *slog.Logger) (*HealthPollOracle, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &HealthPollOracle{
		addr:     addr,
		interval: interval,
		logger:   logger.With("component", "HealthPollOracle", "addr", addr),
		conn:     conn,
		client:   healthpb.NewHealthClient(conn),
	}, nil
}

func (o *HealthPollOracle) IsLeader() bool {
	return o.leader.Load()
}

func (o *HealthPollOracle) Watch(ctx context.Context) {
	o.poll(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (o *HealthPollOracle) poll(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, o.interval/2)
	defer cancel()

	resp, err := o.client.Check(checkCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		o.logger.Warn("health check failed, treating as not leader", "error", err)
		o.leader.Store(false)
		return
	}

	wasLeader := o.leader.Load()
	isLeader := resp.Status == healthpb.HealthCheckResponse_SERVING
	o.leader.Store(isLeader)
	if isLeader != wasLeader {
		o.logger.Info("leadership state changed", "leader", isLeader)
	}
}

func (o *HealthPollOracle) Close() error {
	return o.conn.Close()
}
