package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/rlalpha49/kenmeisync/resilience"
)

// StatsSink persists the running-totals StatsRecord across runs
// (spec.md §4.F). A persist failure is logged, never raised: the
// in-memory Report already reached the caller successfully, so a
// storage hiccup must not turn a successful sync into a failed one.
// The write is still given a few quick retries first, since a
// single dropped connection to a Redis-backed Memory shouldn't cost
// a whole run's stats.
type StatsSink struct {
	memory core.Memory
	logger core.Logger
	retry  *resilience.RetryExecutor
}

// NewStatsSink constructs a StatsSink. logger may be nil.
func NewStatsSink(memory core.Memory, logger core.Logger) *StatsSink {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	retry := resilience.NewRetryExecutor(&resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	})
	retry.SetLogger(logger)
	if core.GetGlobalMetricsRegistry() != nil {
		retry.EnableTelemetry()
	}
	return &StatsSink{memory: memory, logger: logger, retry: retry}
}

// Record merges report into the persisted StatsRecord and writes it
// back, returning the updated record for callers that want to surface
// it (e.g. a CLI summary line) without a second read.
func (s *StatsSink) Record(ctx context.Context, report Report) StatsRecord {
	stats := s.load(ctx)
	stats.Merge(report)
	s.save(ctx, stats)
	return stats
}

func (s *StatsSink) load(ctx context.Context) StatsRecord {
	var stats StatsRecord

	raw, err := s.memory.Get(ctx, core.StatsKey)
	if err != nil {
		s.logger.Warn("failed to load persisted stats, starting from zero", map[string]interface{}{
			"error": err.Error(),
		})
		return stats
	}
	if raw == "" {
		return stats
	}
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		s.logger.Warn("persisted stats record is corrupt, starting from zero", map[string]interface{}{
			"error": err.Error(),
		})
		return StatsRecord{}
	}
	return stats
}

func (s *StatsSink) save(ctx context.Context, stats StatsRecord) {
	raw, err := json.Marshal(stats)
	if err != nil {
		s.logger.Error("failed to marshal stats record", map[string]interface{}{"error": err.Error()})
		return
	}
	// TTL of 0 means "no expiry" for the persisted running totals.
	err = s.retry.Do(ctx, "stats.persist", func() error {
		return s.memory.Set(ctx, core.StatsKey, string(raw), 0)
	})
	if err != nil {
		s.logger.Error("failed to persist stats record", map[string]interface{}{"error": err.Error()})
	}
}

// Summarize produces a short human-readable line for a Report, in the
// shape a CLI's final output would print.
func Summarize(r Report) string {
	base := "sync complete: " + strconv.Itoa(r.SuccessfulUpdates) + " updated, "
	if r.FailedUpdates > 0 {
		base += strconv.Itoa(r.FailedUpdates) + " failed, "
	}
	return base + strconv.Itoa(r.SkippedEntries) + " skipped"
}
