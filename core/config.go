package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the syncer.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("kenmei-sync"),
//	    WithAniListToken(token),
//	    WithDryRun(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core configuration
	Name      string `json:"name" yaml:"name" env:"SYNCER_NAME"`
	ID        string `json:"id" yaml:"id" env:"SYNCER_ID"` // defaults to a generated uuid; identifies one run instance in logs/telemetry
	Namespace string `json:"namespace" yaml:"namespace" env:"SYNCER_NAMESPACE" default:"default"`

	// AniList GraphQL client configuration
	AniList AniListConfig `json:"anilist" yaml:"anilist"`

	// Rate-limited request pipeline configuration
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Sync planner/executor behavior configuration
	Sync SyncConfig `json:"sync" yaml:"sync"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Memory configuration (persisted stats)
	Memory MemoryConfig `json:"memory" yaml:"memory"`

	// Resilience configuration
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Development configuration
	Development DevelopmentConfig `json:"development" yaml:"development"`

	// Logger instance for configuration operations (excluded from JSON)
	logger Logger `json:"-" yaml:"-"`
}

// AniListConfig contains the GraphQL client configuration for the remote
// AniList collection. The token is the opaque bearer credential handed to
// the core by the (out-of-scope) OAuth/credential vault collaborator.
type AniListConfig struct {
	Endpoint      string        `json:"endpoint" yaml:"endpoint" env:"SYNCER_ANILIST_ENDPOINT" default:"https://graphql.anilist.co"`
	Token         string        `json:"-" yaml:"-" env:"SYNCER_ANILIST_TOKEN,ANILIST_TOKEN"`
	UserAgent     string        `json:"user_agent" yaml:"user_agent" env:"SYNCER_ANILIST_USER_AGENT" default:"kenmeisync/1.0"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" env:"SYNCER_ANILIST_TIMEOUT" default:"30s"`
	ChunkSize     int           `json:"chunk_size" yaml:"chunk_size" env:"SYNCER_ANILIST_CHUNK_SIZE" default:"500"`
}

// RateLimitConfig tunes the request pipeline's spacing, retry, and cache
// policy. Defaults implement the spec's MAX_RPM=28 / INTERVAL≈2143ms
// relationship; override MaxRequestsPerMinute only to test against a
// different server-advertised ceiling.
type RateLimitConfig struct {
	MaxRequestsPerMinute int           `json:"max_requests_per_minute" yaml:"max_requests_per_minute" env:"SYNCER_RATE_MAX_RPM" default:"28"`
	MaxRetries           int           `json:"max_retries" yaml:"max_retries" env:"SYNCER_RATE_MAX_RETRIES" default:"5"`
	MaxBackoff           time.Duration `json:"max_backoff" yaml:"max_backoff" env:"SYNCER_RATE_MAX_BACKOFF" default:"60s"`
	MinBackoffFloor      time.Duration `json:"min_backoff_floor" yaml:"min_backoff_floor" env:"SYNCER_RATE_MIN_BACKOFF_FLOOR" default:"1s"`
	JitterFraction       float64       `json:"jitter_fraction" yaml:"jitter_fraction" env:"SYNCER_RATE_JITTER_FRACTION" default:"0.1"`
	CacheTTL             time.Duration `json:"cache_ttl" yaml:"cache_ttl" env:"SYNCER_RATE_CACHE_TTL" default:"30m"`
	IterationBudget      time.Duration `json:"iteration_budget" yaml:"iteration_budget" env:"SYNCER_RATE_ITERATION_BUDGET" default:"250ms"`
	YieldDelay           time.Duration `json:"yield_delay" yaml:"yield_delay" env:"SYNCER_RATE_YIELD_DELAY" default:"10ms"`
}

// Interval returns the guaranteed minimum spacing between dequeues,
// derived from MaxRequestsPerMinute (60000 / MAX_RPM).
func (r RateLimitConfig) Interval() time.Duration {
	if r.MaxRequestsPerMinute <= 0 {
		return 0
	}
	return time.Duration(60000/r.MaxRequestsPerMinute) * time.Millisecond
}

// SyncConfig carries the planner's precedence bits (§4.C of the design) and
// executor behavior toggles.
type SyncConfig struct {
	PreserveCompletedStatus   bool `json:"preserve_completed_status" yaml:"preserve_completed_status" env:"SYNCER_PRESERVE_COMPLETED" default:"true"`
	PrioritizeAniListStatus   bool `json:"prioritize_anilist_status" yaml:"prioritize_anilist_status" env:"SYNCER_PRIORITIZE_STATUS" default:"false"`
	PrioritizeAniListProgress bool `json:"prioritize_anilist_progress" yaml:"prioritize_anilist_progress" env:"SYNCER_PRIORITIZE_PROGRESS" default:"false"`
	PrioritizeAniListScore    bool `json:"prioritize_anilist_score" yaml:"prioritize_anilist_score" env:"SYNCER_PRIORITIZE_SCORE" default:"false"`
	SetPrivate                bool `json:"set_private" yaml:"set_private" env:"SYNCER_SET_PRIVATE" default:"false"`
	Incremental               bool `json:"incremental" yaml:"incremental" env:"SYNCER_INCREMENTAL" default:"false"`
	DryRun                    bool `json:"dry_run" yaml:"dry_run" env:"SYNCER_DRY_RUN" default:"false"`
}

// TelemetryConfig contains observability configuration for metrics and distributed tracing.
// This is an optional module - telemetry is only initialized when Enabled=true.
// Supports OpenTelemetry (OTEL) protocol. The endpoint should be the OTLP receiver address.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled" env:"KENMEISYNC_TELEMETRY_ENABLED" default:"false"`
	Provider       string  `json:"provider" yaml:"provider" env:"KENMEISYNC_TELEMETRY_PROVIDER" default:"otel"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint" env:"KENMEISYNC_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" yaml:"service_name" env:"KENMEISYNC_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	MetricsEnabled bool    `json:"metrics_enabled" yaml:"metrics_enabled" env:"KENMEISYNC_TELEMETRY_METRICS" default:"true"`
	TracingEnabled bool    `json:"tracing_enabled" yaml:"tracing_enabled" env:"KENMEISYNC_TELEMETRY_TRACING" default:"true"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate" env:"KENMEISYNC_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure       bool    `json:"insecure" yaml:"insecure" env:"KENMEISYNC_TELEMETRY_INSECURE" default:"true"`
}

// MemoryConfig contains state storage configuration.
// Supports in-memory storage (default) or Redis for distributed state.
// The MaxSize limit only applies to in-memory storage.
type MemoryConfig struct {
	Provider        string        `json:"provider" yaml:"provider" env:"KENMEISYNC_MEMORY_PROVIDER" default:"inmemory"`
	RedisURL        string        `json:"redis_url" yaml:"redis_url" env:"KENMEISYNC_MEMORY_REDIS_URL,REDIS_URL"`
	MaxSize         int           `json:"max_size" yaml:"max_size" env:"KENMEISYNC_MEMORY_MAX_SIZE" default:"1000"`
	DefaultTTL      time.Duration `json:"default_ttl" yaml:"default_ttl" env:"KENMEISYNC_MEMORY_DEFAULT_TTL" default:"1h"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" env:"KENMEISYNC_MEMORY_CLEANUP_INTERVAL" default:"10m"`
}

// ResilienceConfig contains fault tolerance and resilience patterns configuration.
// These patterns help protect the system from cascading failures and improve reliability.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
	Timeout        TimeoutConfig        `json:"timeout" yaml:"timeout"`
}

// CircuitBreakerConfig defines circuit breaker pattern settings.
// The circuit breaker prevents cascading failures by failing fast when a threshold
// of errors is reached. After a timeout period, it allows limited requests to test
// if the service has recovered.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" env:"KENMEISYNC_CB_ENABLED" default:"false"`
	Threshold        int           `json:"threshold" yaml:"threshold" env:"KENMEISYNC_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" env:"KENMEISYNC_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" yaml:"half_open_requests" env:"KENMEISYNC_CB_HALF_OPEN" default:"3"`
}

// RetryConfig defines retry pattern settings with exponential backoff.
// The retry interval increases exponentially up to MaxInterval.
// Formula: interval = min(InitialInterval * (Multiplier ^ attempt), MaxInterval)
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" env:"KENMEISYNC_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" env:"KENMEISYNC_RETRY_INITIAL_INTERVAL" default:"1s"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" env:"KENMEISYNC_RETRY_MAX_INTERVAL" default:"30s"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" env:"KENMEISYNC_RETRY_MULTIPLIER" default:"2.0"`
}

// TimeoutConfig defines timeout settings for various operations.
// These timeouts prevent operations from hanging indefinitely.
type TimeoutConfig struct {
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout" env:"KENMEISYNC_TIMEOUT_DEFAULT" default:"30s"`
	MaxTimeout     time.Duration `json:"max_timeout" yaml:"max_timeout" env:"KENMEISYNC_TIMEOUT_MAX" default:"5m"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"KENMEISYNC_LOG_LEVEL" default:"info"`
	Format     string `json:"format" yaml:"format" env:"KENMEISYNC_LOG_FORMAT" default:"json"`
	Output     string `json:"output" yaml:"output" env:"KENMEISYNC_LOG_OUTPUT" default:"stdout"`
	TimeFormat string `json:"time_format" yaml:"time_format" env:"KENMEISYNC_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.999999999Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
// When Enabled=true, logging switches to development-friendly defaults:
// human-readable text logs at debug level. It does not turn on
// MockAniList or any other mock.
//
// WARNING: Never enable development mode in production!
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"SYNCER_DEV_MODE" default:"false"`
	MockAniList  bool `json:"mock_anilist" yaml:"mock_anilist" env:"SYNCER_MOCK_ANILIST" default:"false"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging" env:"KENMEISYNC_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" yaml:"pretty_logs" env:"KENMEISYNC_PRETTY_LOGS" default:"false"`
}

// Option is a functional option for configuring the framework.
// Options are applied in order and can return an error if the configuration is invalid.
//
// Example:
//
//	func WithCustomTimeout(timeout time.Duration) Option {
//	    return func(c *Config) error {
//	        if timeout <= 0 {
//	            return fmt.Errorf("timeout must be positive")
//	        }
//	        c.AniList.RequestTimeout = timeout
//	        return nil
//	    }
//	}
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// The defaults are adjusted based on the detected environment:
//   - CI/headless: JSON logging
//   - Local: text logging, development mode
//
// These defaults can be overridden using functional options or environment variables.
func DefaultConfig() *Config {
	cfg := &Config{
		Name:      "kenmei-sync",
		ID:        uuid.NewString(),
		Namespace: "default",
		AniList: AniListConfig{
			Endpoint:       "https://graphql.anilist.co",
			UserAgent:      "kenmeisync/1.0",
			RequestTimeout: 30 * time.Second,
			ChunkSize:      500,
		},
		RateLimit: RateLimitConfig{
			MaxRequestsPerMinute: 28,
			MaxRetries:           5,
			MaxBackoff:           60 * time.Second,
			MinBackoffFloor:      1 * time.Second,
			JitterFraction:       0.1,
			CacheTTL:             30 * time.Minute,
			IterationBudget:      250 * time.Millisecond,
			YieldDelay:           10 * time.Millisecond,
		},
		Sync: SyncConfig{
			PreserveCompletedStatus:   true,
			PrioritizeAniListStatus:   false,
			PrioritizeAniListProgress: false,
			PrioritizeAniListScore:    false,
			SetPrivate:                false,
			Incremental:               false,
			DryRun:                    false,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Provider:       "otel",
			MetricsEnabled: true,
			TracingEnabled: true,
			SamplingRate:   1.0,
			Insecure:       true,
		},
		Memory: MemoryConfig{
			Provider:        "inmemory",
			MaxSize:         1000,
			DefaultTTL:      1 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          false,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 3,
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 1 * time.Second,
				MaxInterval:     30 * time.Second,
				Multiplier:      2.0,
			},
			Timeout: TimeoutConfig{
				DefaultTimeout: 30 * time.Second,
				MaxTimeout:     5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339Nano,
		},
		Development: DevelopmentConfig{
			Enabled:      false,
			MockAniList:  false,
			DebugLogging: false,
			PrettyLogs:   false,
		},
	}

	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment adjusts defaults for an interactive local run versus a
// CI/headless one. This method is called automatically by DefaultConfig().
//
// Detection criteria mirror common CI env vars (CI=true); absent those, the
// syncer assumes an interactive terminal and favors human-readable logs.
func (c *Config) DetectEnvironment() {
	if os.Getenv("CI") != "" {
		c.Logging.Format = "json"
		return
	}

	if os.Getenv("SYNCER_DEV_MODE") == "" {
		c.Development.Enabled = true
		c.Development.PrettyLogs = true
		c.Logging.Format = "text"
	}
}

// LoadFromEnv loads configuration from environment variables and validates the result.
// Environment variables take precedence over defaults but are overridden by functional options.
//
// Variable naming convention:
//   - Domain settings (core, AniList, rate limit, sync, development): SYNCER_<SETTING>
//   - Ambient settings (telemetry, memory, logging, debug): KENMEISYNC_<SETTING>
//   - Standard variables: ANILIST_TOKEN, REDIS_URL, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME
//
// Only the variables read below are applied; an env struct tag on a field
// this function does not read (for example the resilience settings or the
// log output and time format) has no effect. A value that fails to parse is
// skipped (an invalid SYNCER_ANILIST_TIMEOUT is also logged as a warning).
//
// Returns an error only if validation of the resulting configuration fails.
func (c *Config) LoadFromEnv() error {
	if c.logger != nil {
		c.logger.Info("Loading configuration from environment", map[string]interface{}{
			"config_source": "environment_variables",
		})
	}

	// Core settings
	if v := os.Getenv("SYNCER_NAME"); v != "" {
		c.Name = v
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{"setting": "name", "source": "SYNCER_NAME"})
		}
	}
	if v := os.Getenv("SYNCER_ID"); v != "" {
		c.ID = v
	}
	if v := os.Getenv("SYNCER_NAMESPACE"); v != "" {
		c.Namespace = v
	}

	// AniList client settings
	if v := os.Getenv("SYNCER_ANILIST_ENDPOINT"); v != "" {
		c.AniList.Endpoint = v
	}
	if v := os.Getenv("SYNCER_ANILIST_TOKEN"); v != "" {
		c.AniList.Token = v
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{"setting": "anilist_token", "source": "SYNCER_ANILIST_TOKEN", "set": true})
		}
	} else if v := os.Getenv("ANILIST_TOKEN"); v != "" {
		c.AniList.Token = v
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{"setting": "anilist_token", "source": "ANILIST_TOKEN", "set": true})
		}
	}
	if v := os.Getenv("SYNCER_ANILIST_USER_AGENT"); v != "" {
		c.AniList.UserAgent = v
	}
	if v := os.Getenv("SYNCER_ANILIST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AniList.RequestTimeout = d
		} else if c.logger != nil {
			c.logger.Warn("Invalid duration in environment variable", map[string]interface{}{"SYNCER_ANILIST_TIMEOUT": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("SYNCER_ANILIST_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.AniList.ChunkSize = n
		}
	}

	// Rate limit / pipeline settings
	if v := os.Getenv("SYNCER_RATE_MAX_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.MaxRequestsPerMinute = n
		}
	}
	if v := os.Getenv("SYNCER_RATE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RateLimit.MaxRetries = n
		}
	}
	if v := os.Getenv("SYNCER_RATE_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RateLimit.MaxBackoff = d
		}
	}
	if v := os.Getenv("SYNCER_RATE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RateLimit.CacheTTL = d
		}
	}

	// Sync behavior settings
	if v := os.Getenv("SYNCER_PRESERVE_COMPLETED"); v != "" {
		c.Sync.PreserveCompletedStatus = parseBool(v)
	}
	if v := os.Getenv("SYNCER_PRIORITIZE_STATUS"); v != "" {
		c.Sync.PrioritizeAniListStatus = parseBool(v)
	}
	if v := os.Getenv("SYNCER_PRIORITIZE_PROGRESS"); v != "" {
		c.Sync.PrioritizeAniListProgress = parseBool(v)
	}
	if v := os.Getenv("SYNCER_PRIORITIZE_SCORE"); v != "" {
		c.Sync.PrioritizeAniListScore = parseBool(v)
	}
	if v := os.Getenv("SYNCER_SET_PRIVATE"); v != "" {
		c.Sync.SetPrivate = parseBool(v)
	}
	if v := os.Getenv("SYNCER_INCREMENTAL"); v != "" {
		c.Sync.Incremental = parseBool(v)
	}
	if v := os.Getenv("SYNCER_DRY_RUN"); v != "" {
		c.Sync.DryRun = parseBool(v)
	}

	// Telemetry settings
	if v := os.Getenv("KENMEISYNC_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("KENMEISYNC_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{"setting": "telemetry_endpoint", "source": "OTEL_EXPORTER_OTLP_ENDPOINT", "set": true})
		}
	}
	if v := os.Getenv("KENMEISYNC_TELEMETRY_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}

	// Memory settings (back the persisted stats sink)
	if v := os.Getenv("KENMEISYNC_MEMORY_PROVIDER"); v != "" {
		c.Memory.Provider = v
	}
	if v := os.Getenv("KENMEISYNC_MEMORY_REDIS_URL"); v != "" {
		c.Memory.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Memory.RedisURL = v
		if c.logger != nil {
			c.logger.Debug("Configuration loaded", map[string]interface{}{"setting": "redis_url", "source": "REDIS_URL", "set": true})
		}
	}

	// Logging settings
	if v := os.Getenv("KENMEISYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KENMEISYNC_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Development settings
	if v := os.Getenv("SYNCER_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("SYNCER_MOCK_ANILIST"); v != "" {
		c.Development.MockAniList = parseBool(v)
	}
	if v := os.Getenv("KENMEISYNC_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	if err := c.Validate(); err != nil {
		if c.logger != nil {
			c.logger.Error("Configuration validation failed", map[string]interface{}{
				"error":         err.Error(),
				"config_source": "environment_variables",
			})
		}
		return err
	}

	if c.logger != nil {
		c.logger.Info("Configuration loading completed", map[string]interface{}{
			"logging_level":    c.Logging.Level,
			"namespace":        c.Namespace,
			"development_mode": c.Development.Enabled,
			"incremental":      c.Sync.Incremental,
		})
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file (.json, .yaml or .yml).
// The file holds an object matching the Config struct.
// File settings override environment variables but are overridden by functional options.
//
// Example JSON:
//
//	{
//	    "name": "kenmei-sync",
//	    "sync": {
//	        "incremental": true,
//	        "preserve_completed_status": true
//	    }
//	}
func (c *Config) LoadFromFile(path string) error {
	if c.logger != nil {
		c.logger.Info("Loading configuration from file", map[string]interface{}{
			"file_path": path,
		})
	}

	// Clean the path to prevent directory traversal attacks
	cleanPath := filepath.Clean(path)

	// Verify the file has a safe extension
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		if c.logger != nil {
			c.logger.Error("Unsupported config file extension", map[string]interface{}{
				"file_path":         path,
				"clean_path":        cleanPath,
				"extension":         ext,
				"supported_formats": []string{".json", ".yaml", ".yml"},
			})
		}
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	// Resolve a relative path against the working directory; the path
	// is not restricted to any particular directory
	if !filepath.IsAbs(cleanPath) {
		// If relative, resolve it relative to current directory
		wd, err := os.Getwd()
		if err != nil {
			if c.logger != nil {
				c.logger.Error("Failed to get working directory for relative config path", map[string]interface{}{
					"error":      err,
					"error_type": fmt.Sprintf("%T", err),
					"clean_path": cleanPath,
				})
			}
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
		
		if c.logger != nil {
			c.logger.Debug("Resolved relative config path", map[string]interface{}{
				"original_path": path,
				"resolved_path": cleanPath,
				"working_dir":   wd,
			})
		}
	}

	if c.logger != nil {
		c.logger.Debug("Reading configuration file", map[string]interface{}{
			"file_path": cleanPath,
			"extension": ext,
		})
	}

	// Read the file with the cleaned path
	data, err := os.ReadFile(filepath.Clean(cleanPath)) // nosec G304 -- path is validated
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Failed to read config file", map[string]interface{}{
				"error":      err,
				"error_type": fmt.Sprintf("%T", err),
				"file_path":  cleanPath,
			})
		}
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	if c.logger != nil {
		c.logger.Debug("Config file read successfully", map[string]interface{}{
			"file_path": cleanPath,
			"file_size": len(data),
		})
	}

	// Parse based on extension
	switch ext {
	case ".json":
		if c.logger != nil {
			c.logger.Debug("Parsing JSON configuration file", map[string]interface{}{
				"file_path": cleanPath,
			})
		}
		
		if err := json.Unmarshal(data, c); err != nil {
			if c.logger != nil {
				c.logger.Error("Failed to parse JSON config file", map[string]interface{}{
					"error":      err,
					"error_type": fmt.Sprintf("%T", err),
					"file_path":  cleanPath,
					"file_size":  len(data),
				})
			}
			return fmt.Errorf("failed to parse JSON config file: %w", ErrInvalidConfiguration)
		}
		
		if c.logger != nil {
			c.logger.Info("Configuration file loaded successfully", map[string]interface{}{
				"file_path": cleanPath,
				"format":    "JSON",
				"file_size": len(data),
			})
		}
		
	case ".yaml", ".yml":
		if c.logger != nil {
			c.logger.Debug("Parsing YAML configuration file", map[string]interface{}{
				"file_path": cleanPath,
			})
		}

		if err := yaml.Unmarshal(data, c); err != nil {
			if c.logger != nil {
				c.logger.Error("Failed to parse YAML config file", map[string]interface{}{
					"error":      err,
					"error_type": fmt.Sprintf("%T", err),
					"file_path":  cleanPath,
					"file_size":  len(data),
				})
			}
			return fmt.Errorf("failed to parse YAML config file: %w", ErrInvalidConfiguration)
		}

		if c.logger != nil {
			c.logger.Info("Configuration file loaded successfully", map[string]interface{}{
				"file_path": cleanPath,
				"format":    "YAML",
				"file_size": len(data),
			})
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig() but can also be called
// manually after modifying configuration.
//
// Validation rules:
//   - Name is required
//   - Telemetry endpoint is required when telemetry is enabled
//   - Redis URL is required when the memory provider is "redis" (unless using mock)
//
// Deliberately absent: a missing AniList token is NOT a validation error. Per
// the external-interface contract, an empty token with entries queued is
// acceptable — it surfaces as an all-failed batch (every per-call dispatch
// returns a NoToken failure), not a construction-time error.
func (c *Config) Validate() error {
	if c.Name == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required when telemetry is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Memory.Provider == "redis" && c.Memory.RedisURL == "" && !c.Development.MockAniList {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "redis URL is required for the redis memory provider (or use mock mode in development)",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// Helper functions

// parseStringList splits a comma-separated string into a slice of strings.
// Whitespace is trimmed from each element, and empty strings are filtered out.
// Example: "a, b, c" -> ["a", "b", "c"]
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithName sets the syncer's instance name.
// The name is used for identification in logging and as the default
// telemetry service name. If not set, defaults to "kenmei-sync".
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithNamespace sets the logical namespace for the syncer instance.
// Used for multi-tenancy and environment separation (e.g., "production", "staging").
func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

// WithAniListToken sets the opaque bearer token used to authenticate every
// remote call. An empty token is accepted here — per the external-interface
// contract its absence is discovered per-call (NoToken), not at construction.
func WithAniListToken(token string) Option {
	return func(c *Config) error {
		c.AniList.Token = token
		return nil
	}
}

// WithAniListEndpoint overrides the GraphQL endpoint. Intended for pointing
// at a test double during integration tests.
func WithAniListEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.AniList.Endpoint = endpoint
		return nil
	}
}

// WithRateLimit overrides the requests-per-minute ceiling and retry budget
// that govern the request pipeline's spacing and backoff.
func WithRateLimit(maxRPM, maxRetries int) Option {
	return func(c *Config) error {
		if maxRPM < 1 {
			return &FrameworkError{
				Op:      "WithRateLimit",
				Kind:    "config",
				Message: fmt.Sprintf("invalid max requests per minute: %d", maxRPM),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.RateLimit.MaxRequestsPerMinute = maxRPM
		c.RateLimit.MaxRetries = maxRetries
		return nil
	}
}

// WithCacheTTL overrides the read cache's time-to-live for idempotent search
// queries (default 30 minutes).
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		c.RateLimit.CacheTTL = ttl
		return nil
	}
}

// WithSyncPreferences configures the planner's precedence bits: whether a
// COMPLETED remote status blocks further writes, and whether the remote's
// status/progress/score should win over the local entry when they diverge.
func WithSyncPreferences(preserveCompleted, prioritizeStatus, prioritizeProgress, prioritizeScore bool) Option {
	return func(c *Config) error {
		c.Sync.PreserveCompletedStatus = preserveCompleted
		c.Sync.PrioritizeAniListStatus = prioritizeStatus
		c.Sync.PrioritizeAniListProgress = prioritizeProgress
		c.Sync.PrioritizeAniListScore = prioritizeScore
		return nil
	}
}

// WithIncremental enables incremental step expansion: large progress jumps
// are split into a heartbeat step, a final-progress step, and a metadata
// step instead of one monolithic mutation.
func WithIncremental(enabled bool) Option {
	return func(c *Config) error {
		c.Sync.Incremental = enabled
		return nil
	}
}

// WithDryRun runs the planner and reports what it would do without
// dispatching any mutation through the pipeline.
func WithDryRun(enabled bool) Option {
	return func(c *Config) error {
		c.Sync.DryRun = enabled
		return nil
	}
}

// WithTelemetry enables telemetry with the specified endpoint.
// The endpoint should be an OpenTelemetry Protocol (OTLP) receiver.
// Examples:
//   - "http://localhost:4318" (local collector, HTTP)
//   - "https://otel.example.com:443" (cloud provider)
//
// When enabled, both metrics and tracing are collected by default.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = c.Name
		}
		return nil
	}
}

// WithEnableMetrics enables or disables metrics collection.
// Metrics include request counts, latencies, error rates, etc.
// Requires telemetry to be enabled with an endpoint.
// Metrics are exported via OpenTelemetry protocol.
func WithEnableMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.MetricsEnabled = enabled
		if enabled && c.Telemetry.Endpoint != "" {
			c.Telemetry.Enabled = true
		}
		return nil
	}
}

// WithEnableTracing enables or disables distributed tracing.
// Tracing provides detailed request flow across services.
// Requires telemetry to be enabled with an endpoint.
// Traces are exported via OpenTelemetry protocol.
func WithEnableTracing(enabled bool) Option {
	return func(c *Config) error {
		c.Telemetry.TracingEnabled = enabled
		if enabled && c.Telemetry.Endpoint != "" {
			c.Telemetry.Enabled = true
		}
		return nil
	}
}

// WithOTELEndpoint sets the OpenTelemetry endpoint and automatically enables telemetry.
// This is a convenience method equivalent to:
//
//	WithTelemetry(true, endpoint)
//
// The endpoint should be an OTLP receiver address.
func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Provider = "otel"
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the minimum logging level.
// Valid levels (from least to most verbose):
//   - "error": Only errors
//   - "warn": Warnings and above
//   - "info": Informational messages and above (default)
//   - "debug": Debug messages and above
//
// Debug level should not be used in production due to performance impact.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging output format.
// Valid formats:
//   - "json": Structured JSON for log aggregation (recommended for production)
//   - "text": Human-readable format (recommended for development)
//
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithMemoryProvider sets the storage provider backing the persisted
// sync-stats record. The pipeline's read cache is always in-process and
// does not use this provider.
// Valid providers:
//   - "inmemory": Local in-memory storage (default, not shared across processes)
//   - "redis": Redis-based storage
func WithMemoryProvider(provider string) Option {
	return func(c *Config) error {
		c.Memory.Provider = provider
		return nil
	}
}

// WithCircuitBreaker enables the circuit breaker pattern for fault tolerance.
// Parameters:
//   - threshold: Minimum number of requests in the breaker's window before
//     its error rate is evaluated; from then on the circuit opens when that
//     error rate reaches the breaker's error threshold
//   - timeout: Duration to wait before attempting to close the circuit
//
// The circuit breaker prevents cascading failures by failing fast when
// a service is unhealthy, giving it time to recover.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.Enabled = true
		c.Resilience.CircuitBreaker.Threshold = threshold
		c.Resilience.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithRetry configures automatic retry with exponential backoff.
// Parameters:
//   - maxAttempts: Maximum number of retry attempts (including initial)
//   - initialInterval: Initial delay between retries
//
// The retry interval doubles after each failure up to MaxInterval.
// Use this for transient failures like network issues.
func WithRetry(maxAttempts int, initialInterval time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.InitialInterval = initialInterval
		return nil
	}
}

// WithConfigFile loads configuration from a JSON or YAML file.
// The file path can be absolute or relative to the working directory.
// Options are applied in the order given, so only options listed after
// this one override file settings.
//
// This is useful for complex configurations or environment-specific settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithDevelopmentMode enables development mode with developer-friendly defaults.
// When enabled:
//   - Pretty (human-readable) logs
//   - Debug log level
//   - Text log format
//
// WARNING: Never enable in production! This mode sacrifices
// performance and security for developer convenience.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}

// WithMockAniList sets Development.MockAniList. The repository has no fake
// AniList client; the flag's only effect is that Validate then accepts the
// redis memory provider without a Redis URL.
func WithMockAniList(enabled bool) Option {
	return func(c *Config) error {
		c.Development.MockAniList = enabled
		return nil
	}
}

// WithLogger sets a logger for configuration operations.
// This logger will be used for logging during config loading, parsing, and validation.
// If not set, configuration operations will be performed silently.
//
// Example:
//
//	cfg, err := NewConfig(
//	    WithLogger(myLogger),
//	    WithName("kenmei-sync"),
//	)
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options (highest priority)
//  4. Validation via Validate()
//
// Returns an error if any option fails or if the final configuration is invalid.
//
// Example:
//
//	cfg, err := NewConfig(
//	    WithName("kenmei-sync"),
//	    WithAniListToken(token),
//	    WithIncremental(true),
//	)
//	if err != nil {
//	    return err
//	}
func NewConfig(opts ...Option) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Load from environment first (includes validation per spec)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	// Apply functional options (these override env vars)
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)

		// Track for metrics enabling when telemetry available
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}

		cfg.logger = logger
	}

	// Validate final configuration after options applied
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ============================================================================
// ProductionLogger Implementation - Layered Observability Architecture
// ============================================================================

// ProductionLogger provides layered observability for framework operations
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	format      string
	output      io.Writer

	// Metrics layer (enabled when telemetry available)
	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:          strings.ToLower(logging.Level),
		debug:          dev.DebugLogging || logging.Level == "debug",
		serviceName:    serviceName,
		format:         logging.Format,
		output:         output,
		metricsEnabled: false, // Enabled by telemetry module when available
	}
}

// EnableMetrics is called by telemetry module to enable metrics layer
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

// Core logging implementation with all three layers
func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		// Structured logging for production log aggregation
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": "framework",
			"message":   msg,
		}

		// LAYER 3: Add trace context when available
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}

		// Add all fields
		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		// Human-readable for local development
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s] %s%s%s\n",
			timestamp, level, p.serviceName, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, msg, fields, ctx)
	}
}

// Metrics emission with cardinality protection
func (p *ProductionLogger) emitFrameworkMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	// Build labels with cardinality awareness
	labels := []string{
		"level", level,
		"service", p.serviceName,
		"component", "framework",
	}

	// Add only low-cardinality fields as labels
	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type", "kind", "provider":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	// Emit with context when available (enables correlation)
	if ctx != nil {
		emitMetricWithContext(ctx, "syncer.framework.operations", 1.0, labels...)
	} else {
		emitMetric("syncer.framework.operations", 1.0, labels...)
	}
}

// Helper functions for weak coupling to telemetry
func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
