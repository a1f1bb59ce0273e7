package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ziyaddin/venice/compressors"
	"github.com/ziyaddin/venice/config"
	"github.com/ziyaddin/venice/internal/admin"
	"github.com/ziyaddin/venice/internal/adminlog"
	"github.com/ziyaddin/venice/internal/backend"
	"github.com/ziyaddin/venice/internal/codec"
	"github.com/ziyaddin/venice/internal/coordinator"
	"github.com/ziyaddin/venice/internal/debugsrv"
	"github.com/ziyaddin/venice/internal/dispatch"
	"github.com/ziyaddin/venice/internal/leader"
	"github.com/ziyaddin/venice/internal/metrics"
	"github.com/ziyaddin/venice/internal/queue"
	"github.com/ziyaddin/venice/internal/tailer"
	"github.com/ziyaddin/venice/internal/watermark"
	"github.com/ziyaddin/venice/internal/worker"
)

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// initTracerProvider creates and configures an OpenTelemetry TracerProvider.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("distributed tracing is disabled")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("initializing distributed tracing", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error

	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("venice-admin-consumer")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		logger.Info("shutting down tracer provider")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down tracer provider", "error", err)
		}
	}

	return tp, cleanup, nil
}

func buildLogStream(cfg config.LogStreamConfig) (adminlog.LogStream, error) {
	switch strings.ToLower(cfg.Mode) {
	case "memory":
		return adminlog.NewMemoryLogStream(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("log_stream.path must be set when mode is 'file'")
		}
		return adminlog.OpenFileLogStream(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported log_stream.mode: %q", cfg.Mode)
	}
}

func buildRole(s string) (admin.Role, error) {
	switch strings.ToLower(s) {
	case "parent":
		return admin.RoleParent, nil
	case "child":
		return admin.RoleChild, nil
	default:
		return 0, fmt.Errorf("unsupported role: %q", s)
	}
}

func buildOracle(cfg config.LeaderConfig, logger *slog.Logger) (leader.Oracle, error) {
	switch strings.ToLower(cfg.Mode) {
	case "static":
		return leader.NewStaticOracle(), nil
	case "healthpoll":
		if cfg.Address == "" {
			return nil, fmt.Errorf("leader.address must be set when mode is 'healthpoll'")
		}
		interval := config.ParseDuration(cfg.PollInterval, 5*time.Second, logger)
		return leader.NewHealthPollOracle(cfg.Address, interval, logger)
	default:
		return nil, fmt.Errorf("unsupported leader.mode: %q", cfg.Mode)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	role, err := buildRole(cfg.Role)
	if err != nil {
		logger.Error("invalid role in configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting admin consumer", "cluster", cfg.ClusterName, "role", role.String())

	_, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}

	logStream, err := buildLogStream(cfg.LogStream)
	if err != nil {
		logger.Error("failed to open admin log stream", "error", err)
		os.Exit(1)
	}

	wm, err := watermark.NewFileStore(cfg.Watermark.Path)
	if err != nil {
		logger.Error("failed to open watermark store", "error", err)
		os.Exit(1)
	}

	oracle, err := buildOracle(cfg.Leader, logger)
	if err != nil {
		logger.Error("failed to build leader oracle", "error", err)
		os.Exit(1)
	}

	m, err := metrics.New(cfg.ClusterName)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	systemCollector := metrics.NewSystemCollector(cfg.Watermark.Path, 5*time.Second, logger)
	systemCollector.Start()
	defer systemCollector.Stop()

	var debugServer *debugsrv.Server
	if cfg.Debug.Enabled {
		debugServer, err = debugsrv.New(debugsrv.Config{
			ListenAddress:     cfg.Debug.ListenAddress,
			GRPCListenAddress: cfg.Debug.GRPCListenAddress,
			PProfEnabled:      cfg.Debug.PProfEnabled,
			MetricsEnabled:    cfg.Debug.MetricsEnabled,
			StatsvizEnabled:   cfg.Debug.StatsvizEnabled,
		}, logger, oracle.IsLeader)
		if err != nil {
			logger.Error("failed to build debug server", "error", err)
			os.Exit(1)
		}
		debugServer.Start()
	}

	// The real backend (store catalog, schema registry, version manager) is
	// a future production wiring point; it is out of scope here, so the
	// standalone binary runs against the in-memory reference implementation.
	adminBackend := backend.NewFake()

	registry := queue.NewRegistry()
	table := dispatch.New(adminBackend, role)
	c := codec.New(compressors.CompressionSnappy)

	workerPool := worker.New(worker.Config{
		ClusterName: cfg.ClusterName,
		PoolSize:    cfg.Worker.PoolSize,
		BackoffBase: config.ParseDuration(cfg.Worker.BackoffBase, 500*time.Millisecond, logger),
		BackoffMax:  config.ParseDuration(cfg.Worker.BackoffMax, 30*time.Second, logger),
	}, registry, table, wm, m, logger)

	tl := tailer.New(cfg.ClusterName, logStream, c, registry, workerPool, wm, logger)

	co := coordinator.New(coordinator.Config{
		ClusterName:        cfg.ClusterName,
		CheckpointInterval: config.ParseDuration(cfg.Checkpoint.Interval, 5*time.Second, logger),
	}, tl, workerPool, oracle, registry, wm, logger)

	ctx, cancel := context.WithCancel(context.Background())

	coordErrChan := make(chan error, 1)
	go func() {
		coordErrChan <- co.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-coordErrChan:
		if err != nil {
			logger.Error("coordinator exited with an error", "error", err)
		}
	case <-quit:
		logger.Info("shutdown signal received, stopping consumer")
		co.Stop()
		cancel()
		<-coordErrChan

		if err := oracle.Close(); err != nil {
			logger.Warn("error closing leader oracle", "error", err)
		}
		if debugServer != nil {
			debugServer.Stop()
		}
		tracerCleanup()

		logger.Info("admin consumer exited gracefully")
	}
}
