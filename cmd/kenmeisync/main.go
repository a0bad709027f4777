// Command kenmeisync drives one batch synchronization run: it loads
// configuration, reads the matched-pairs hand-off produced by the
// (out-of-scope) fuzzy-matching collaborator, whose pairs already carry
// their remote AniList snapshots, plans the necessary changes, and
// executes them through the rate-limited pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rlalpha49/kenmeisync/anilist"
	"github.com/rlalpha49/kenmeisync/core"
	"github.com/rlalpha49/kenmeisync/pipeline"
	"github.com/rlalpha49/kenmeisync/sync"
	"github.com/rlalpha49/kenmeisync/telemetry"
)

func main() {
	matchedPairsPath := flag.String("matched-pairs", "", "path to a JSON file of matched local/remote pairs")
	flag.Parse()

	if *matchedPairsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: kenmeisync -matched-pairs <path>")
		os.Exit(2)
	}

	cfg, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)

	if cfg.Telemetry.Enabled {
		initTelemetry(cfg.Telemetry)
	}

	pairs, err := loadMatchedPairs(*matchedPairsPath)
	if err != nil {
		logger.Error("failed to load matched pairs", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	client := anilist.NewClient(cfg.AniList)
	pipe := pipeline.New(client, cfg.RateLimit, cfg.Resilience, logger)
	defer pipe.Close()

	ctx := context.Background()

	syncConfig := sync.Config{
		PreserveCompletedStatus:   cfg.Sync.PreserveCompletedStatus,
		PrioritizeAniListStatus:   cfg.Sync.PrioritizeAniListStatus,
		PrioritizeAniListProgress: cfg.Sync.PrioritizeAniListProgress,
		PrioritizeAniListScore:    cfg.Sync.PrioritizeAniListScore,
		SetPrivate:                cfg.Sync.SetPrivate,
		Incremental:               cfg.Sync.Incremental,
		DryRun:                    cfg.Sync.DryRun,
	}

	plan, err := sync.Plan(pairs, syncConfig)
	if err != nil {
		logger.Error("planning failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	if syncConfig.DryRun {
		printDryRun(plan)
		return
	}

	sink := func(snap sync.ProgressSnapshot) {
		fields := map[string]interface{}{
			"completed": snap.Completed,
			"total":     snap.Total,
		}
		if snap.RateLimited {
			logger.Info("rate limit countdown", fields)
		} else {
			logger.Debug("progress", fields)
		}
	}

	executor := sync.NewExecutor(pipe, logger, sink, cfg.RateLimit.MaxRetries)
	report := executor.Run(ctx, plan)

	fmt.Println(sync.Summarize(report))

	inMemory := core.NewMemoryStore()
	inMemory.SetLogger(logger)
	var memory core.Memory = inMemory
	if cfg.Memory.Provider == "redis" {
		redisMemory, err := core.NewRedisMemory(cfg.Memory, logger)
		if err != nil {
			logger.Warn("failed to connect to redis, falling back to in-memory stats", map[string]interface{}{"error": err.Error()})
		} else {
			defer redisMemory.Close()
			memory = redisMemory
		}
	}
	stats := sync.NewStatsSink(memory, logger)
	stats.Record(ctx, report)

	if report.FailedUpdates > 0 {
		os.Exit(1)
	}
}

// initTelemetry wires the telemetry package's OTEL provider into
// core.MetricsRegistry so pipeline/sync can emit counters and
// histograms via core.GetGlobalMetricsRegistry() without importing
// telemetry directly. Failure here is non-fatal: metrics are simply
// dropped, matching telemetry.Emit's own fail-open behavior.
func initTelemetry(cfg core.TelemetryConfig) {
	tconfig := telemetry.Config{
		Enabled:      cfg.Enabled,
		ServiceName:  cfg.ServiceName,
		Endpoint:     cfg.Endpoint,
		Provider:     cfg.Provider,
		SamplingRate: cfg.SamplingRate,
	}
	if err := telemetry.Initialize(tconfig); err != nil {
		return
	}
	telemetry.EnableFrameworkIntegration(nil)
}

func loadMatchedPairs(path string) ([]sync.MatchedPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading matched pairs file: %w", err)
	}
	var pairs []sync.MatchedPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parsing matched pairs file: %w", err)
	}
	return pairs, nil
}

func printDryRun(plan sync.PlanMap) {
	fmt.Printf("dry run: %d entries would change\n", len(plan))
	for mediaID, steps := range plan {
		fmt.Printf("  media %d: %d step(s)\n", mediaID, len(steps))
	}
}
