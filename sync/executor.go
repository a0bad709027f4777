package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rlalpha49/kenmeisync/core"
)

// Dispatcher is the pipeline-side collaborator the executor drives
// operations through. pipeline.Pipeline implements this; it owns
// spacing, retry, and caching (spec.md §4.A) — the executor only
// decides WHAT to send and HOW to react to the classified outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, mediaID int, query string, variables map[string]interface{}) (map[string]interface{}, error)
}

// Executor drives a PlanMap through a Dispatcher per spec.md §4.D.
type Executor struct {
	dispatcher Dispatcher
	logger     core.Logger
	sink       ProgressSink
	maxRetries int
}

// NewExecutor constructs an Executor. logger and sink may be nil; a
// nil logger falls back to core.NoOpLogger, a nil sink is simply
// never called.
func NewExecutor(dispatcher Dispatcher, logger core.Logger, sink ProgressSink, maxRetries int) *Executor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Executor{
		dispatcher: dispatcher,
		logger:     logger,
		sink:       sink,
		maxRetries: maxRetries,
	}
}

// Run executes every step of every entry in the plan, in ascending
// media-id order for determinism, and produces a final Report.
// Cancellation is observed at three points per spec.md §5: before
// starting a new entry, before dispatching a step, and during a
// rate-limit countdown wait.
func (e *Executor) Run(ctx context.Context, plan PlanMap) Report {
	report := Report{Timestamp: time.Now()}

	mediaIDs := make([]int, 0, len(plan))
	for id := range plan {
		mediaIDs = append(mediaIDs, id)
	}
	sort.Ints(mediaIDs)

	total := 0
	for _, id := range mediaIDs {
		total += len(plan[id])
	}
	report.TotalEntries = len(mediaIDs)

	completed := 0

	for _, id := range mediaIDs {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, SyncError{MediaID: id, Message: core.ErrCancelled.Error()})
			report.SkippedEntries++
			continue
		}

		steps := plan[id]
		ok, stepErr := e.runEntry(ctx, steps, &completed, total)
		if ok {
			report.SuccessfulUpdates++
		} else if stepErr != nil {
			report.FailedUpdates++
			report.Errors = append(report.Errors, SyncError{MediaID: id, Message: stepErr.Error()})
		} else {
			report.SkippedEntries++
		}
	}

	report.Timestamp = time.Now()
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("sync.executor.runs")
		registry.Gauge("sync.executor.batch_size", float64(report.TotalEntries))
	}
	return report
}

// runEntry drives every step of one entry's plan in order, stopping
// at the first unrecoverable failure. It returns ok=true only if every
// step for this entry succeeded.
func (e *Executor) runEntry(ctx context.Context, steps []*PlannedEntry, completed *int, total int) (bool, error) {
	for _, step := range steps {
		if ctx.Err() != nil {
			return false, core.ErrCancelled
		}

		ok, err := e.runStep(ctx, step, completed, total)
		*completed++
		if !ok {
			return false, err
		}
	}
	return true, nil
}

// runStep dispatches a single step, retrying on rate-limit (countdown
// mode, ticking the sink at least once per second) and soft-retryable
// failures up to maxRetries, per spec.md §4.D.
func (e *Executor) runStep(ctx context.Context, step *PlannedEntry, completed *int, total int) (bool, error) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false, core.ErrCancelled
		}

		query, variables := e.buildCall(step)
		resp, dispatchErr := e.dispatcher.Dispatch(ctx, step.MediaID, query, variables)
		result := Classify(resp, dispatchErr)
		if registry := core.GetGlobalMetricsRegistry(); registry != nil {
			registry.Counter("sync.executor.step_outcomes", "outcome", string(result.Outcome))
		}

		switch result.Outcome {
		case OutcomeSuccess:
			e.emitProgress(step, *completed, total, false, 0)
			return true, nil

		case OutcomeRateLimited:
			e.logger.Warn("rate limited, counting down before retry", map[string]interface{}{
				"media_id":       step.MediaID,
				"retry_after_ms": result.RetryAfterMs,
			})
			if err := e.countdown(ctx, step, *completed, total, result.RetryAfterMs); err != nil {
				return false, err
			}
			continue

		case OutcomeSoftRetry:
			attempt++
			if attempt > e.maxRetries {
				return false, fmt.Errorf("media id %d: %s: %w", step.MediaID, result.Message, core.ErrHTTPServer)
			}
			backoff := retryBackoff(attempt)
			e.logger.Warn("soft failure, backing off before retry", map[string]interface{}{
				"media_id": step.MediaID,
				"attempt":  attempt,
				"backoff":  backoff.String(),
			})
			if err := sleepOrCancel(ctx, backoff); err != nil {
				return false, err
			}
			continue

		default: // OutcomeHardFailure
			return false, fmt.Errorf("media id %d: %s", step.MediaID, result.Message)
		}
	}
}

func (e *Executor) buildCall(step *PlannedEntry) (string, map[string]interface{}) {
	stepNum := 0
	if step.SyncMetadata != nil {
		stepNum = step.SyncMetadata.Step
	}
	vars := BuildVariables(step, stepNum)
	return BuildMutation(vars), vars.ToMap()
}

// countdown waits out a rate-limit window, ticking the progress sink
// at least once per second, and observes cancellation throughout.
func (e *Executor) countdown(ctx context.Context, step *PlannedEntry, completed, total int, retryAfterMs int64) error {
	remaining := time.Duration(retryAfterMs) * time.Millisecond
	tick := time.Second

	for remaining > 0 {
		wait := tick
		if remaining < tick {
			wait = remaining
		}
		if err := sleepOrCancel(ctx, wait); err != nil {
			return err
		}
		remaining -= wait
		e.emitProgress(step, completed, total, true, remaining.Milliseconds())
	}
	return nil
}

func (e *Executor) emitProgress(step *PlannedEntry, completed, total int, rateLimited bool, retryAfterMs int64) {
	if e.sink == nil {
		return
	}
	stepNum, totalSteps := 0, 0
	if step.SyncMetadata != nil {
		stepNum = step.SyncMetadata.Step
	}
	e.sink(ProgressSnapshot{
		Total:        total,
		Completed:    completed,
		CurrentEntry: step,
		CurrentStep:  stepNum,
		TotalSteps:   totalSteps,
		RateLimited:  rateLimited,
		RetryAfterMs: retryAfterMs,
	})
}

// retryBackoff is the executor's own backoff for a step that came
// back soft-retryable after the pipeline already exhausted its own
// retry budget (spec.md §4.A) — a second, coarser safety net, not a
// duplicate of the pipeline's formula: 1000ms * 2^(attempt-1).
func retryBackoff(attempt int) time.Duration {
	ms := 1000 * (1 << uint(attempt-1))
	return time.Duration(ms) * time.Millisecond
}

func sleepOrCancel(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return core.ErrCancelled
	case <-t.C:
		return nil
	}
}

// RetryFailed re-runs only the media ids present in prevReport's
// Errors. Each one is re-run with its full step list from plan: the
// report does not record which step failed, so an incremental entry
// restarts from its first step, and steps that already succeeded are
// dispatched again.
func (e *Executor) RetryFailed(ctx context.Context, plan PlanMap, prevReport Report) Report {
	retryPlan := make(PlanMap)
	for _, fail := range prevReport.Errors {
		if steps, ok := plan[fail.MediaID]; ok {
			retryPlan[fail.MediaID] = steps
		}
	}
	return e.Run(ctx, retryPlan)
}
