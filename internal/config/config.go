// Package config loads the broker's configuration: built-in defaults,
// overridden by an optional JSONC config file, overridden in turn by
// command-line flags, followed by a validation pass.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"
)

// Config holds every broker tunable.
type Config struct {
	RegionName         string        `json:"region_name"`
	SlotCount          int           `json:"slot_count"`
	SlotSize           int           `json:"slot_size"`
	RegionDir          string        `json:"region_dir"`
	WorkerCount        int           `json:"worker_count"`
	WriterCount        int           `json:"writer_count"`
	PollInterval       time.Duration `json:"poll_interval_ms"`
	AcquireTimeout     time.Duration `json:"acquire_timeout_ms"`
	RequestSoftTimeout time.Duration `json:"request_soft_timeout_s"`
	ContextWindow      int           `json:"context_window"`
	LogFile            string        `json:"log_file"`
	LogLevel           string        `json:"log_level"`
	MetricsListenAddr  string        `json:"metrics_listen_addr"`
}

// Default returns the built-in configuration baseline.
func Default() Config {
	return Config{
		RegionName:         "gemma_ipc_shm",
		SlotCount:          16,
		SlotSize:           8192,
		RegionDir:          "/dev/shm",
		WorkerCount:        1,
		WriterCount:        1,
		PollInterval:       500 * time.Millisecond,
		AcquireTimeout:     1500 * time.Millisecond,
		RequestSoftTimeout: 300 * time.Second,
		ContextWindow:      4096,
		LogFile:            "gemma-broker.log",
		LogLevel:           "info",
		MetricsListenAddr:  ":9090",
	}
}

// fileShape mirrors Config's JSON-visible fields; durations are
// expressed in the file as plain integers (milliseconds or seconds, per
// field) since JSON has no native duration type.
type fileShape struct {
	RegionName         *string `json:"region_name"`
	SlotCount          *int    `json:"slot_count"`
	SlotSize           *int    `json:"slot_size"`
	RegionDir          *string `json:"region_dir"`
	WorkerCount        *int    `json:"worker_count"`
	WriterCount        *int    `json:"writer_count"`
	PollIntervalMs     *int    `json:"poll_interval_ms"`
	AcquireTimeoutMs   *int    `json:"acquire_timeout_ms"`
	RequestSoftTimeout *int    `json:"request_soft_timeout_s"`
	ContextWindow      *int    `json:"context_window"`
	LogFile            *string `json:"log_file"`
	LogLevel           *string `json:"log_level"`
	MetricsListenAddr  *string `json:"metrics_listen_addr"`
}

// LoadFile applies a JSONC config file on top of cfg. A missing path is
// not an error; the file may carry trailing commas and comments since it
// is passed through hujson.Standardize before parsing.
func LoadFile(cfg Config, path string) (Config, error) {
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cfg, fmt.Errorf("config: invalid JSONC in %s: %w", path, err)
	}

	var shape fileShape
	if err := json.Unmarshal(standardized, &shape); err != nil {
		return cfg, fmt.Errorf("config: invalid JSON in %s: %w", path, err)
	}

	applyFileShape(&cfg, shape)
	return cfg, nil
}

func applyFileShape(cfg *Config, s fileShape) {
	if s.RegionName != nil {
		cfg.RegionName = *s.RegionName
	}
	if s.SlotCount != nil {
		cfg.SlotCount = *s.SlotCount
	}
	if s.SlotSize != nil {
		cfg.SlotSize = *s.SlotSize
	}
	if s.RegionDir != nil {
		cfg.RegionDir = *s.RegionDir
	}
	if s.WorkerCount != nil {
		cfg.WorkerCount = *s.WorkerCount
	}
	if s.WriterCount != nil {
		cfg.WriterCount = *s.WriterCount
	}
	if s.PollIntervalMs != nil {
		cfg.PollInterval = time.Duration(*s.PollIntervalMs) * time.Millisecond
	}
	if s.AcquireTimeoutMs != nil {
		cfg.AcquireTimeout = time.Duration(*s.AcquireTimeoutMs) * time.Millisecond
	}
	if s.RequestSoftTimeout != nil {
		cfg.RequestSoftTimeout = time.Duration(*s.RequestSoftTimeout) * time.Second
	}
	if s.ContextWindow != nil {
		cfg.ContextWindow = *s.ContextWindow
	}
	if s.LogFile != nil {
		cfg.LogFile = *s.LogFile
	}
	if s.LogLevel != nil {
		cfg.LogLevel = *s.LogLevel
	}
	if s.MetricsListenAddr != nil {
		cfg.MetricsListenAddr = *s.MetricsListenAddr
	}
}

// Flags registers every Config field as a pflag flag bound to cfg,
// following the same "CLI wins last" precedence the broker uses. Call
// fs.Parse after Flags, then pass cfg to Validate.
func Flags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.RegionName, "region-name", cfg.RegionName, "shared-memory region name")
	fs.IntVar(&cfg.SlotCount, "slot-count", cfg.SlotCount, "number of slots in the region")
	fs.IntVar(&cfg.SlotSize, "slot-size", cfg.SlotSize, "size of one slot in bytes, header included")
	fs.StringVar(&cfg.RegionDir, "region-dir", cfg.RegionDir, "directory backing the shared-memory region")
	fs.IntVar(&cfg.WorkerCount, "worker-count", cfg.WorkerCount, "number of worker goroutines")
	fs.IntVar(&cfg.WriterCount, "writer-count", cfg.WriterCount, "number of writer goroutines")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "detector poll interval")
	fs.DurationVar(&cfg.AcquireTimeout, "acquire-timeout", cfg.AcquireTimeout, "region mutex acquire timeout")
	fs.DurationVar(&cfg.RequestSoftTimeout, "request-soft-timeout", cfg.RequestSoftTimeout, "soft timeout for a single model call")
	fs.IntVar(&cfg.ContextWindow, "context-window", cfg.ContextWindow, "model context window in tokens")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotating log file path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.MetricsListenAddr, "metrics-listen-addr", cfg.MetricsListenAddr, "Prometheus metrics listen address")
}

// Validate rejects geometry and concurrency settings that cannot
// possibly work before the broker tries to create a region with them.
func Validate(cfg Config) error {
	if cfg.RegionName == "" {
		return fmt.Errorf("config: region_name must not be empty")
	}
	if cfg.SlotCount < 1 {
		return fmt.Errorf("config: slot_count must be >= 1, got %d", cfg.SlotCount)
	}
	if cfg.SlotSize < 49 {
		return fmt.Errorf("config: slot_size must be >= 49 (48-byte header + 1 payload byte), got %d", cfg.SlotSize)
	}
	if cfg.WorkerCount < 1 {
		return fmt.Errorf("config: worker_count must be >= 1, got %d", cfg.WorkerCount)
	}
	if cfg.WriterCount < 1 {
		return fmt.Errorf("config: writer_count must be >= 1, got %d", cfg.WriterCount)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if cfg.RequestSoftTimeout <= 0 {
		return fmt.Errorf("config: request_soft_timeout_s must be positive")
	}
	if cfg.ContextWindow < 1 {
		return fmt.Errorf("config: context_window must be >= 1, got %d", cfg.ContextWindow)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be one of debug/info/warn/error, got %q", cfg.LogLevel)
	}
	return nil
}
