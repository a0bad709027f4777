package core

import "time"

// Environment Variables
const (
	// EnvAniListToken is the standard (non-prefixed) token variable name,
	// checked as a fallback to SYNCER_ANILIST_TOKEN.
	EnvAniListToken = "ANILIST_TOKEN"

	EnvRedisURL = "REDIS_URL" // Redis connection URL for memory/cache storage
	EnvDevMode  = "SYNCER_DEV_MODE"
)

// Pipeline Constants
const (
	// DefaultMaxRequestsPerMinute is the client-side request ceiling, kept
	// below the server-advertised 60/min to leave headroom for retries.
	DefaultMaxRequestsPerMinute = 28

	// DefaultMaxRetries is the retry budget per operation, independent of
	// any rate-limit wait.
	DefaultMaxRetries = 5

	// DefaultIterationBudget bounds how long a single pipeline dispatch
	// loop iteration may run before yielding.
	DefaultIterationBudget = 250 * time.Millisecond

	// DefaultYieldDelay is the pause taken when rescheduling a loop
	// iteration that exceeded its budget.
	DefaultYieldDelay = 10 * time.Millisecond
)

// Read Cache Constants
const (
	// DefaultCachePrefix namespaces cache keys when a shared store (e.g.
	// Redis) is used for both the read cache and persisted stats.
	DefaultCachePrefix = "kenmeisync:cache:"

	// DefaultCacheTTL is the time-to-live for cached search responses.
	DefaultCacheTTL = 30 * time.Minute

	// StatsKey is the single key under which the persisted running-totals
	// record (§4.F) is stored.
	StatsKey = "kenmeisync:stats"
)
