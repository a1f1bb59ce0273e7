// Package debugsrv hosts the admin consumer's debug/metrics surface:
// pprof, the expvar /metrics endpoint, statsviz, and a gRPC health
// service reflecting current leadership, so a peer process's
// leader.HealthPollOracle has something to poll.
package debugsrv

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/arl/statsviz"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Config controls which debug surfaces are enabled.
type Config struct {
	ListenAddress  string
	PProfEnabled   bool
	MetricsEnabled bool
	StatsvizEnabled bool
	GRPCListenAddress string
}

// Server bundles the HTTP debug server and a gRPC health server. Start
// is non-blocking; Stop gracefully shuts both down.
type Server struct {
	httpServer  *http.Server
	grpcServer  *grpc.Server
	grpcLis     net.Listener
	healthSrv   *health.Server
	logger      *slog.Logger

	mu      sync.Mutex
	started bool
}

// New builds the debug server. isLeader is polled on a ticker to keep
// the gRPC health service's serving status in sync with this process's
// leadership state.
func New(cfg Config, logger *slog.Logger, isLeader func() bool) (*Server, error) {
	logger = logger.With("component", "debugsrv")
	mux := http.NewServeMux()

	if cfg.PProfEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logger.Info("pprof profiling endpoints enabled on /debug/pprof")
	}

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", expvar.Handler())
		logger.Info("expvar metrics endpoint enabled on /metrics")
	}

	if cfg.StatsvizEnabled {
		if err := statsviz.Register(mux, statsviz.Root("/viz"), statsviz.SendFrequency(250*time.Millisecond)); err != nil {
			logger.Warn("failed to register statsviz", "error", err)
		}
	}

	addr := cfg.ListenAddress
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		healthSrv:  health.NewServer(),
		logger:     logger,
	}

	if cfg.GRPCListenAddress != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListenAddress)
		if err != nil {
			return nil, fmt.Errorf("debugsrv: listen on %s: %w", cfg.GRPCListenAddress, err)
		}
		s.grpcLis = lis
		s.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.healthSrv)
	}

	if isLeader != nil {
		go s.watchLeadership(isLeader)
	}

	return s, nil
}

func (s *Server) watchLeadership(isLeader func() bool) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if isLeader() {
			s.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		} else {
			s.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
}

// Start launches both servers. It does not block; callers should select
// on their own shutdown signal and then call Stop.
func (s *Server) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		s.logger.Info("debug HTTP server listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug HTTP server failed", "error", err)
		}
	}()

	if s.grpcServer != nil {
		go func() {
			s.logger.Info("debug gRPC health server listening", "address", s.grpcLis.Addr().String())
			if err := s.grpcServer.Serve(s.grpcLis); err != nil {
				s.logger.Error("debug gRPC server failed", "error", err)
			}
		}()
	}
}

func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("debug HTTP server shutdown failed", "error", err)
	}

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}
