// Package config provides configuration parsing for the foresight service.
//
// Command-line flags take precedence over environment variables, which take
// precedence over defaults. What the service analyzes (nodes, resources,
// systems, known events and backfill sources) lives in a separate YAML watch
// file loaded with LoadWatch.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	watch, err := config.LoadWatch(cfg.WatchFile)
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/foresight/pkg/audit"
	"github.com/HatiCode/foresight/pkg/bus"
	"github.com/HatiCode/foresight/pkg/outbox"
	"github.com/HatiCode/foresight/pkg/proactive"
	"github.com/HatiCode/foresight/pkg/storage"
	"github.com/HatiCode/foresight/pkg/timeseries"
	"github.com/HatiCode/foresight/pkg/tls"
)

// Bus backends.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

// Audit backends.
const (
	AuditRedis = "redis"
	AuditFile  = "file"
	AuditNone  = "none"
)

// Config holds all service configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	TLS        tls.Config

	Interval         time.Duration
	BufferCapacity   int
	HistoryCapacity  int
	HistoryRetention time.Duration

	OutboxSize      int
	OutboxRetries   int
	OutboundTimeout time.Duration

	Bus                string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string

	Audit           string
	AuditStream     string
	AuditFile       string
	AuditMaxSizeMB  int
	AuditMaxBackups int
	AuditMaxAgeDays int
	AdapterTimeout  time.Duration
	WatchFile       string
}

// ParseFlags parses os.Args and the environment into a Config, exiting the
// process on invalid configuration.
func ParseFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}
	return cfg
}

// Parse registers the service flags on fs, parses args and validates the
// result.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address for health and metrics")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":9092"), "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable mTLS for the ops servers and adapter clients")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for peer verification")

	fs.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", proactive.DefaultInterval), "Analysis cycle interval")
	fs.IntVar(&cfg.BufferCapacity, "buffer-capacity", getEnvInt("BUFFER_CAPACITY", timeseries.DefaultCapacity), "Points kept per series")
	fs.IntVar(&cfg.HistoryCapacity, "history-capacity", getEnvInt("HISTORY_CAPACITY", storage.DefaultCapacity), "Records kept per record kind")
	fs.DurationVar(&cfg.HistoryRetention, "history-retention", getEnvDuration("HISTORY_RETENTION", storage.DefaultRetention), "How long records are kept")

	fs.IntVar(&cfg.OutboxSize, "outbox-size", getEnvInt("OUTBOX_SIZE", outbox.DefaultSize), "Outbound queue size")
	fs.IntVar(&cfg.OutboxRetries, "outbox-retries", getEnvInt("OUTBOX_RETRIES", outbox.DefaultRetries), "Retries per outbound publish or audit append")
	fs.DurationVar(&cfg.OutboundTimeout, "outbound-timeout", getEnvDuration("OUTBOUND_TIMEOUT", outbox.DefaultTimeout), "Timeout per outbound attempt")

	fs.StringVar(&cfg.Bus, "bus", getEnv("BUS", BusMemory), "Event bus: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.StringVar(&cfg.RedisChannelPrefix, "redis-channel-prefix", getEnv("REDIS_CHANNEL_PREFIX", bus.DefaultChannelPrefix), "Prefix for Redis pub/sub channels")

	fs.StringVar(&cfg.Audit, "audit", getEnv("AUDIT", AuditNone), "Audit log: redis, file or none")
	fs.StringVar(&cfg.AuditStream, "audit-stream", getEnv("AUDIT_STREAM", audit.DefaultStream), "Redis stream for audit entries")
	fs.StringVar(&cfg.AuditFile, "audit-file", getEnv("AUDIT_FILE", "foresight-audit.log"), "Audit log file path")
	fs.IntVar(&cfg.AuditMaxSizeMB, "audit-max-size-mb", getEnvInt("AUDIT_MAX_SIZE_MB", 100), "Audit file size before rotation")
	fs.IntVar(&cfg.AuditMaxBackups, "audit-max-backups", getEnvInt("AUDIT_MAX_BACKUPS", 10), "Rotated audit files kept")
	fs.IntVar(&cfg.AuditMaxAgeDays, "audit-max-age-days", getEnvInt("AUDIT_MAX_AGE_DAYS", 30), "Days rotated audit files are kept")

	fs.DurationVar(&cfg.AdapterTimeout, "adapter-timeout", getEnvDuration("ADAPTER_TIMEOUT", 30*time.Second), "HTTP timeout for backfill queries")
	fs.StringVar(&cfg.WatchFile, "watch-file", getEnv("WATCH_FILE", ""), "YAML file describing what to analyze")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for values the service cannot start with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	if c.BufferCapacity <= 0 {
		return errors.New("buffer-capacity must be > 0")
	}
	if c.HistoryCapacity <= 0 {
		return errors.New("history-capacity must be > 0")
	}
	if c.HistoryRetention <= 0 {
		return errors.New("history-retention must be > 0")
	}
	if c.OutboxSize <= 0 {
		return errors.New("outbox-size must be > 0")
	}
	if c.OutboxRetries < 0 {
		return errors.New("outbox-retries cannot be negative")
	}

	switch c.Bus {
	case BusMemory:
	case BusRedis:
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required when bus=redis")
		}
	default:
		return fmt.Errorf("invalid bus %q (must be memory or redis)", c.Bus)
	}

	switch c.Audit {
	case AuditNone:
	case AuditRedis:
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required when audit=redis")
		}
		if c.AuditStream == "" {
			return errors.New("audit-stream cannot be empty")
		}
	case AuditFile:
		if c.AuditFile == "" {
			return errors.New("audit-file is required when audit=file")
		}
	default:
		return fmt.Errorf("invalid audit %q (must be redis, file, or none)", c.Audit)
	}

	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	return nil
}

// Outbox returns the outbound queue settings.
func (c *Config) Outbox() outbox.Config {
	return outbox.Config{
		Size:    c.OutboxSize,
		Retries: c.OutboxRetries,
		Timeout: c.OutboundTimeout,
	}
}

// AuditFileConfig returns the rotation settings for a file audit log.
func (c *Config) AuditFileConfig() audit.FileConfig {
	fc := audit.DefaultFileConfig(c.AuditFile)
	fc.MaxSizeMB = c.AuditMaxSizeMB
	fc.MaxBackups = c.AuditMaxBackups
	fc.MaxAgeDays = c.AuditMaxAgeDays
	return fc
}

// LoadWatch reads and validates a YAML watch file. An empty path yields an
// empty watch.
func LoadWatch(path string) (proactive.Watch, error) {
	var w proactive.Watch
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read watch file: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parse watch file %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return w, fmt.Errorf("invalid watch file %s: %w", path, err)
	}
	return w, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
