package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LogStreamConfig selects the LogStream backing and its parameters.
type LogStreamConfig struct {
	Mode string `yaml:"mode"` // "memory" or "file"
	Path string `yaml:"path"`
}

// WatermarkConfig points at the durable WatermarkStore's directory.
type WatermarkConfig struct {
	Path string `yaml:"path"`
}

// LeaderConfig selects the LeaderOracle implementation.
type LeaderConfig struct {
	Mode         string `yaml:"mode"` // "static" or "healthpoll"
	Address      string `yaml:"address"`
	PollInterval string `yaml:"poll_interval"`
}

// WorkerConfig controls the ExecutionWorker pool.
type WorkerConfig struct {
	PoolSize    int    `yaml:"pool_size"`
	BackoffBase string `yaml:"backoff_base"`
	BackoffMax  string `yaml:"backoff_max"`
}

// CheckpointConfig controls how often the Coordinator advances the
// persisted offset.
type CheckpointConfig struct {
	Interval string `yaml:"interval"`
}

// DebugConfig holds debugging-related configurations.
type DebugConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ListenAddress     string `yaml:"listen_address"`
	GRPCListenAddress string `yaml:"grpc_listen_address"`
	PProfEnabled      bool   `yaml:"pprof_enabled"`
	MetricsEnabled    bool   `yaml:"metrics_enabled"`
	StatsvizEnabled   bool   `yaml:"statsviz_enabled"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// SecurityConfig holds the operator credential file settings. Nothing in
// this repository reads it: adminctl always authenticates reset-execid
// and takes the credential file path from its own -user-file flag.
type SecurityConfig struct {
	Enabled      bool   `yaml:"enabled"`
	UserFilePath string `yaml:"user_file_path"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// Config is the top-level admin consumer configuration.
type Config struct {
	ClusterName string           `yaml:"cluster_name"`
	Role        string           `yaml:"role"` // "parent" or "child"
	LogStream   LogStreamConfig  `yaml:"log_stream"`
	Watermark   WatermarkConfig  `yaml:"watermark"`
	Leader      LeaderConfig     `yaml:"leader"`
	Worker      WorkerConfig     `yaml:"worker"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	Debug       DebugConfig      `yaml:"debug"`
	Tracing     TracingConfig    `yaml:"tracing"`
	Security    SecurityConfig   `yaml:"security"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		ClusterName: "standalone",
		Role:        "parent",
		LogStream: LogStreamConfig{
			Mode: "memory",
			Path: "./data/adminlog",
		},
		Watermark: WatermarkConfig{
			Path: "./data/watermark",
		},
		Leader: LeaderConfig{
			Mode:         "static",
			PollInterval: "5s",
		},
		Worker: WorkerConfig{
			PoolSize:    4,
			BackoffBase: "500ms",
			BackoffMax:  "30s",
		},
		Checkpoint: CheckpointConfig{
			Interval: "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "admin-consumer.log",
		},
		Security: SecurityConfig{
			Enabled:      false,
			UserFilePath: "operators.db",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Debug: DebugConfig{
			Enabled:           true,
			ListenAddress:     "0.0.0.0:6060",
			GRPCListenAddress: "0.0.0.0:6061",
			PProfEnabled:      true,
			MetricsEnabled:    true,
			StatsvizEnabled:   true,
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	// Read all data from the reader
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	// If data is empty, return defaults.
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
