package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "kenmei-sync", cfg.Name)
	assert.Equal(t, "default", cfg.Namespace)

	// AniList defaults
	assert.Equal(t, "https://graphql.anilist.co", cfg.AniList.Endpoint)
	assert.Equal(t, "kenmeisync/1.0", cfg.AniList.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.AniList.RequestTimeout)
	assert.Equal(t, 500, cfg.AniList.ChunkSize)

	// Rate limit defaults
	assert.Equal(t, 28, cfg.RateLimit.MaxRequestsPerMinute)
	assert.Equal(t, 5, cfg.RateLimit.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.MaxBackoff)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.CacheTTL)

	// Sync defaults
	assert.True(t, cfg.Sync.PreserveCompletedStatus)
	assert.False(t, cfg.Sync.PrioritizeAniListStatus)
	assert.False(t, cfg.Sync.Incremental)
	assert.False(t, cfg.Sync.DryRun)

	// Telemetry defaults (disabled by default)
	assert.False(t, cfg.Telemetry.Enabled)

	// Memory defaults
	assert.Equal(t, "inmemory", cfg.Memory.Provider)
	assert.Equal(t, 1000, cfg.Memory.MaxSize)

	// Logging defaults
	assert.Contains(t, []string{"info", "debug"}, cfg.Logging.Level)
}

// TestRateLimitInterval verifies the MAX_RPM -> interval derivation
func TestRateLimitInterval(t *testing.T) {
	tests := []struct {
		maxRPM   int
		expected time.Duration
	}{
		{28, 2142 * time.Millisecond},
		{60, 1000 * time.Millisecond},
		{0, 0},
		{-1, 0},
	}

	for _, tt := range tests {
		rl := RateLimitConfig{MaxRequestsPerMinute: tt.maxRPM}
		assert.Equal(t, tt.expected, rl.Interval(), "maxRPM=%d", tt.maxRPM)
	}
}

// TestDetectEnvironment verifies environment detection logic
func TestDetectEnvironment(t *testing.T) {
	t.Run("CI environment", func(t *testing.T) {
		_ = os.Setenv("CI", "true")
		defer func() { _ = os.Unsetenv("CI") }()

		cfg := DefaultConfig()

		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("Local environment", func(t *testing.T) {
		_ = os.Unsetenv("CI")
		_ = os.Unsetenv("SYNCER_DEV_MODE")

		cfg := DefaultConfig()

		assert.True(t, cfg.Development.Enabled)
		assert.True(t, cfg.Development.PrettyLogs)
		assert.Equal(t, "text", cfg.Logging.Format)
	})
}

// TestLoadFromEnv verifies environment variable loading
func TestLoadFromEnv(t *testing.T) {
	testEnv := map[string]string{
		"SYNCER_NAME":               "test-syncer",
		"SYNCER_ID":                 "test-123",
		"SYNCER_NAMESPACE":          "testing",
		"SYNCER_ANILIST_TOKEN":      "tok-abc",
		"SYNCER_ANILIST_CHUNK_SIZE": "250",
		"SYNCER_RATE_MAX_RPM":       "20",
		"SYNCER_RATE_MAX_RETRIES":   "3",
		"SYNCER_PRESERVE_COMPLETED": "false",
		"SYNCER_PRIORITIZE_STATUS":  "true",
		"SYNCER_INCREMENTAL":        "true",
		"SYNCER_DRY_RUN":            "true",
		"KENMEISYNC_LOG_LEVEL":          "debug",
		"KENMEISYNC_LOG_FORMAT":         "json",
		"SYNCER_DEV_MODE":           "true",
		"SYNCER_MOCK_ANILIST":       "true",
	}

	for k, v := range testEnv {
		_ = os.Setenv(k, v)
		defer func(k string) { _ = os.Unsetenv(k) }(k)
	}

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "test-syncer", cfg.Name)
	assert.Equal(t, "test-123", cfg.ID)
	assert.Equal(t, "testing", cfg.Namespace)
	assert.Equal(t, "tok-abc", cfg.AniList.Token)
	assert.Equal(t, 250, cfg.AniList.ChunkSize)
	assert.Equal(t, 20, cfg.RateLimit.MaxRequestsPerMinute)
	assert.Equal(t, 3, cfg.RateLimit.MaxRetries)
	assert.False(t, cfg.Sync.PreserveCompletedStatus)
	assert.True(t, cfg.Sync.PrioritizeAniListStatus)
	assert.True(t, cfg.Sync.Incremental)
	assert.True(t, cfg.Sync.DryRun)

	// Dev mode forces debug/text regardless of the explicit KENMEISYNC_LOG_* values
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.True(t, cfg.Development.Enabled)
	assert.True(t, cfg.Development.MockAniList)
}

// TestLoadFromEnv_TokenFallback verifies the bare ANILIST_TOKEN fallback
func TestLoadFromEnv_TokenFallback(t *testing.T) {
	_ = os.Unsetenv("SYNCER_ANILIST_TOKEN")
	_ = os.Setenv("ANILIST_TOKEN", "bare-token")
	defer func() { _ = os.Unsetenv("ANILIST_TOKEN") }()

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "bare-token", cfg.AniList.Token)
}

// TestLoadFromFile verifies JSON file loading
func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.json")

	configData := map[string]interface{}{
		"name":      "file-syncer",
		"namespace": "file-namespace",
		"sync": map[string]interface{}{
			"incremental": true,
			"dry_run":     true,
		},
		"logging": map[string]interface{}{
			"level":  "warn",
			"format": "text",
		},
	}

	jsonData, err := json.MarshalIndent(configData, "", "  ")
	require.NoError(t, err)

	err = os.WriteFile(configFile, jsonData, 0644)
	require.NoError(t, err)

	cfg := DefaultConfig()
	err = cfg.LoadFromFile(configFile)
	require.NoError(t, err)

	assert.Equal(t, "file-syncer", cfg.Name)
	assert.Equal(t, "file-namespace", cfg.Namespace)
	assert.True(t, cfg.Sync.Incremental)
	assert.True(t, cfg.Sync.DryRun)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

// TestValidate verifies configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Config)
		wantErr string
	}{
		{
			name: "valid configuration",
			setup: func(cfg *Config) {
				cfg.Name = "test-syncer"
			},
			wantErr: "",
		},
		{
			name: "missing name",
			setup: func(cfg *Config) {
				cfg.Name = ""
			},
			wantErr: "name is required",
		},
		{
			name: "missing anilist token is not a validation error",
			setup: func(cfg *Config) {
				cfg.AniList.Token = ""
			},
			wantErr: "",
		},
		{
			name: "Telemetry enabled without endpoint",
			setup: func(cfg *Config) {
				cfg.Telemetry.Enabled = true
				cfg.Telemetry.Endpoint = ""
			},
			wantErr: "telemetry endpoint is required when telemetry is enabled",
		},
		{
			name: "Redis memory without URL",
			setup: func(cfg *Config) {
				cfg.Memory.Provider = "redis"
				cfg.Memory.RedisURL = ""
				cfg.Development.MockAniList = false
			},
			wantErr: "redis URL is required for the redis memory provider",
		},
		{
			name: "Redis memory with mock",
			setup: func(cfg *Config) {
				cfg.Memory.Provider = "redis"
				cfg.Memory.RedisURL = ""
				cfg.Development.MockAniList = true
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// TestFunctionalOptions verifies all functional options
func TestFunctionalOptions(t *testing.T) {
	t.Run("WithName", func(t *testing.T) {
		cfg, err := NewConfig(WithName("custom-syncer"))
		require.NoError(t, err)
		assert.Equal(t, "custom-syncer", cfg.Name)
	})

	t.Run("WithNamespace", func(t *testing.T) {
		cfg, err := NewConfig(WithNamespace("production"))
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.Namespace)
	})

	t.Run("WithAniListToken", func(t *testing.T) {
		cfg, err := NewConfig(WithAniListToken("sk-test-token"))
		require.NoError(t, err)
		assert.Equal(t, "sk-test-token", cfg.AniList.Token)
	})

	t.Run("WithAniListEndpoint", func(t *testing.T) {
		cfg, err := NewConfig(WithAniListEndpoint("http://localhost:9999/graphql"))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999/graphql", cfg.AniList.Endpoint)
	})

	t.Run("WithRateLimit", func(t *testing.T) {
		cfg, err := NewConfig(WithRateLimit(40, 10))
		require.NoError(t, err)
		assert.Equal(t, 40, cfg.RateLimit.MaxRequestsPerMinute)
		assert.Equal(t, 10, cfg.RateLimit.MaxRetries)

		_, err = NewConfig(WithRateLimit(0, 10))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid max requests per minute")
	})

	t.Run("WithCacheTTL", func(t *testing.T) {
		cfg, err := NewConfig(WithCacheTTL(5 * time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, cfg.RateLimit.CacheTTL)
	})

	t.Run("WithSyncPreferences", func(t *testing.T) {
		cfg, err := NewConfig(WithSyncPreferences(false, true, true, false))
		require.NoError(t, err)
		assert.False(t, cfg.Sync.PreserveCompletedStatus)
		assert.True(t, cfg.Sync.PrioritizeAniListStatus)
		assert.True(t, cfg.Sync.PrioritizeAniListProgress)
		assert.False(t, cfg.Sync.PrioritizeAniListScore)
	})

	t.Run("WithIncremental", func(t *testing.T) {
		cfg, err := NewConfig(WithIncremental(true))
		require.NoError(t, err)
		assert.True(t, cfg.Sync.Incremental)
	})

	t.Run("WithDryRun", func(t *testing.T) {
		cfg, err := NewConfig(WithDryRun(true))
		require.NoError(t, err)
		assert.True(t, cfg.Sync.DryRun)
	})

	t.Run("WithTelemetry", func(t *testing.T) {
		cfg, err := NewConfig(WithTelemetry(true, "http://otel:4317"))
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "http://otel:4317", cfg.Telemetry.Endpoint)
	})

	t.Run("WithEnableMetrics", func(t *testing.T) {
		cfg, err := NewConfig(
			WithTelemetry(true, "http://otel:4317"),
			WithEnableMetrics(false),
		)
		require.NoError(t, err)
		assert.False(t, cfg.Telemetry.MetricsEnabled)
	})

	t.Run("WithEnableTracing", func(t *testing.T) {
		cfg, err := NewConfig(
			WithTelemetry(true, "http://otel:4317"),
			WithEnableTracing(false),
		)
		require.NoError(t, err)
		assert.False(t, cfg.Telemetry.TracingEnabled)
	})

	t.Run("WithOTELEndpoint", func(t *testing.T) {
		cfg, err := NewConfig(WithOTELEndpoint("http://jaeger:4317"))
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "otel", cfg.Telemetry.Provider)
		assert.Equal(t, "http://jaeger:4317", cfg.Telemetry.Endpoint)
	})

	t.Run("WithLogLevel", func(t *testing.T) {
		cfg, err := NewConfig(WithLogLevel("debug"))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("WithLogFormat", func(t *testing.T) {
		cfg, err := NewConfig(WithLogFormat("text"))
		require.NoError(t, err)
		assert.Equal(t, "text", cfg.Logging.Format)
	})

	t.Run("WithMemoryProvider", func(t *testing.T) {
		cfg, err := NewConfig(WithMemoryProvider("redis"), WithMockAniList(true))
		require.NoError(t, err)
		assert.Equal(t, "redis", cfg.Memory.Provider)
	})

	t.Run("WithCircuitBreaker", func(t *testing.T) {
		cfg, err := NewConfig(WithCircuitBreaker(10, 60*time.Second))
		require.NoError(t, err)
		assert.True(t, cfg.Resilience.CircuitBreaker.Enabled)
		assert.Equal(t, 10, cfg.Resilience.CircuitBreaker.Threshold)
		assert.Equal(t, 60*time.Second, cfg.Resilience.CircuitBreaker.Timeout)
	})

	t.Run("WithRetry", func(t *testing.T) {
		cfg, err := NewConfig(WithRetry(5, 2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Resilience.Retry.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.Resilience.Retry.InitialInterval)
	})

	t.Run("WithDevelopmentMode", func(t *testing.T) {
		cfg, err := NewConfig(WithDevelopmentMode(true))
		require.NoError(t, err)
		assert.True(t, cfg.Development.Enabled)
		assert.True(t, cfg.Development.PrettyLogs)
		assert.Equal(t, "text", cfg.Logging.Format)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("WithMockAniList", func(t *testing.T) {
		cfg, err := NewConfig(WithMockAniList(true))
		require.NoError(t, err)
		assert.True(t, cfg.Development.MockAniList)
	})
}

// TestConfigPriority verifies configuration priority order
func TestConfigPriority(t *testing.T) {
	_ = os.Setenv("SYNCER_RATE_MAX_RPM", "77")
	defer func() { _ = os.Unsetenv("SYNCER_RATE_MAX_RPM") }()

	// Functional option should win over environment variable
	cfg, err := NewConfig(WithRateLimit(88, 5))
	require.NoError(t, err)

	assert.Equal(t, 88, cfg.RateLimit.MaxRequestsPerMinute)
}

// TestParseHelpers verifies helper functions
func TestParseHelpers(t *testing.T) {
	t.Run("parseStringList", func(t *testing.T) {
		tests := []struct {
			input    string
			expected []string
		}{
			{"a,b,c", []string{"a", "b", "c"}},
			{"a, b, c", []string{"a", "b", "c"}},
			{"  a  ,  b  ,  c  ", []string{"a", "b", "c"}},
			{"a", []string{"a"}},
			{"", []string{}},
			{",,,", []string{}},
			{"a,,b", []string{"a", "b"}},
		}

		for _, tt := range tests {
			result := parseStringList(tt.input)
			assert.Equal(t, tt.expected, result, "input: %s", tt.input)
		}
	})

	t.Run("parseBool", func(t *testing.T) {
		tests := []struct {
			input    string
			expected bool
		}{
			{"true", true},
			{"True", true},
			{"TRUE", true},
			{"1", true},
			{"yes", true},
			{"YES", true},
			{"on", true},
			{"ON", true},
			{"false", false},
			{"False", false},
			{"0", false},
			{"no", false},
			{"off", false},
			{"", false},
			{"invalid", false},
		}

		for _, tt := range tests {
			result := parseBool(tt.input)
			assert.Equal(t, tt.expected, result, "input: %s", tt.input)
		}
	})
}

// TestConfigWithConfigFile verifies WithConfigFile option
func TestConfigWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test-config.json")

	configData := map[string]interface{}{
		"name": "file-loaded-syncer",
		"sync": map[string]interface{}{
			"dry_run": true,
		},
	}

	jsonData, err := json.MarshalIndent(configData, "", "  ")
	require.NoError(t, err)

	err = os.WriteFile(configFile, jsonData, 0644)
	require.NoError(t, err)

	// Load config from file using option; the explicit option below should
	// still override the file value for the same field.
	cfg, err := NewConfig(
		WithConfigFile(configFile),
		WithName("override-name"),
	)
	require.NoError(t, err)

	assert.Equal(t, "override-name", cfg.Name)
	assert.True(t, cfg.Sync.DryRun)
}

// BenchmarkNewConfig benchmarks configuration creation
func BenchmarkNewConfig(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = NewConfig(
			WithName("bench-syncer"),
			WithAniListToken("sk-bench"),
			WithRateLimit(28, 5),
		)
	}
}

// BenchmarkLoadFromEnv benchmarks environment variable loading
func BenchmarkLoadFromEnv(b *testing.B) {
	_ = os.Setenv("SYNCER_NAME", "bench-syncer")
	_ = os.Setenv("SYNCER_RATE_MAX_RPM", "28")
	defer func() {
		_ = os.Unsetenv("SYNCER_NAME")
		_ = os.Unsetenv("SYNCER_RATE_MAX_RPM")
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := DefaultConfig()
		_ = cfg.LoadFromEnv()
	}
}

// BenchmarkValidate benchmarks configuration validation
func BenchmarkValidate(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Name = "bench-syncer"
	cfg.AniList.Token = "sk-bench"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}

// ExampleNewConfig demonstrates basic configuration usage
func ExampleNewConfig() {
	cfg, err := NewConfig(
		WithName("example-syncer"),
		WithAniListToken("sk-example"),
	)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Syncer: %s\n", cfg.Name)
	// Output: Syncer: example-syncer
}

// ExampleNewConfig_development demonstrates development configuration
func ExampleNewConfig_development() {
	cfg, err := NewConfig(
		WithName("dev-syncer"),
		WithDevelopmentMode(true),
		WithMockAniList(true),
	)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Development mode: %v, Mock AniList: %v\n",
		cfg.Development.Enabled, cfg.Development.MockAniList)
	// Output: Development mode: true, Mock AniList: true
}

// ExampleNewConfig_production demonstrates production configuration
func ExampleNewConfig_production() {
	cfg, err := NewConfig(
		WithName("prod-syncer"),
		WithNamespace("production"),
		WithAniListToken("sk-test-example"), // Use test token for example
		WithOTELEndpoint("http://jaeger:4317"),
		WithCircuitBreaker(5, 30*time.Second),
	)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Production config: %s in %s namespace\n",
		cfg.Name, cfg.Namespace)
	// Output: Production config: prod-syncer in production namespace
}
