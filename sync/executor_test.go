package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDispatcher returns one response per call, in order, for a
// given media id; it never blocks, so tests run fast even through
// rate-limit/backoff branches (those branches still sleep, but only
// for however long the scripted response says).
type scriptedDispatcher struct {
	responses map[int][]map[string]interface{}
	errs      map[int][]error
	calls     map[int]int
}

func newScriptedDispatcher() *scriptedDispatcher {
	return &scriptedDispatcher{
		responses: make(map[int][]map[string]interface{}),
		errs:      make(map[int][]error),
		calls:     make(map[int]int),
	}
}

func (d *scriptedDispatcher) script(mediaID int, resp map[string]interface{}, err error) {
	d.responses[mediaID] = append(d.responses[mediaID], resp)
	d.errs[mediaID] = append(d.errs[mediaID], err)
}

func (d *scriptedDispatcher) Dispatch(_ context.Context, mediaID int, _ string, _ map[string]interface{}) (map[string]interface{}, error) {
	i := d.calls[mediaID]
	d.calls[mediaID] = i + 1
	return d.responses[mediaID][i], d.errs[mediaID][i]
}

func successResponse() map[string]interface{} {
	return map[string]interface{}{"data": map[string]interface{}{"SaveMediaListEntry": map[string]interface{}{"id": float64(1)}}}
}

func rateLimitedResponse(retryAfterSeconds int) map[string]interface{} {
	return map[string]interface{}{
		"errors": []interface{}{
			map[string]interface{}{
				"message":    "rate limited",
				"extensions": map[string]interface{}{"retryAfter": float64(retryAfterSeconds)},
			},
		},
	}
}

func hardFailureResponse() map[string]interface{} {
	return map[string]interface{}{
		"errors": []interface{}{map[string]interface{}{"message": "Media not found"}},
	}
}

func TestExecutor_Run_AllSucceed(t *testing.T) {
	d := newScriptedDispatcher()
	d.script(1, successResponse(), nil)
	d.script(2, successResponse(), nil)

	plan := PlanMap{
		1: {{MediaID: 1, SyncMetadata: &SyncMetadata{}}},
		2: {{MediaID: 2, SyncMetadata: &SyncMetadata{}}},
	}

	exec := NewExecutor(d, nil, nil, 3)
	report := exec.Run(context.Background(), plan)

	assert.Equal(t, 2, report.SuccessfulUpdates)
	assert.Equal(t, 0, report.FailedUpdates)
	assert.Empty(t, report.Errors)
}

func TestExecutor_Run_HardFailureRecordsError(t *testing.T) {
	d := newScriptedDispatcher()
	d.script(1, hardFailureResponse(), nil)

	plan := PlanMap{1: {{MediaID: 1, SyncMetadata: &SyncMetadata{}}}}

	exec := NewExecutor(d, nil, nil, 3)
	report := exec.Run(context.Background(), plan)

	assert.Equal(t, 0, report.SuccessfulUpdates)
	assert.Equal(t, 1, report.FailedUpdates)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 1, report.Errors[0].MediaID)
}

func TestExecutor_Run_SoftRetryEventuallySucceeds(t *testing.T) {
	d := newScriptedDispatcher()
	d.script(1, map[string]interface{}{"errors": []interface{}{map[string]interface{}{"message": "Internal Server Error"}}}, nil)
	d.script(1, successResponse(), nil)

	plan := PlanMap{1: {{MediaID: 1, SyncMetadata: &SyncMetadata{}}}}

	exec := NewExecutor(d, nil, nil, 3)
	report := exec.Run(context.Background(), plan)

	assert.Equal(t, 1, report.SuccessfulUpdates)
	assert.Equal(t, 2, d.calls[1])
}

func TestExecutor_Run_SoftRetryExhaustsRetries(t *testing.T) {
	d := newScriptedDispatcher()
	for i := 0; i < 5; i++ {
		d.script(1, map[string]interface{}{"errors": []interface{}{map[string]interface{}{"message": "Internal Server Error"}}}, nil)
	}

	plan := PlanMap{1: {{MediaID: 1, SyncMetadata: &SyncMetadata{}}}}

	exec := NewExecutor(d, nil, nil, 2)
	report := exec.Run(context.Background(), plan)

	assert.Equal(t, 1, report.FailedUpdates)
}

func TestExecutor_Run_RateLimitedThenSucceeds(t *testing.T) {
	d := newScriptedDispatcher()
	d.script(1, rateLimitedResponse(1), nil)
	d.script(1, successResponse(), nil)

	var snapshots []ProgressSnapshot
	sink := func(s ProgressSnapshot) { snapshots = append(snapshots, s) }

	plan := PlanMap{1: {{MediaID: 1, SyncMetadata: &SyncMetadata{}}}}

	exec := NewExecutor(d, nil, sink, 3)
	start := time.Now()
	report := exec.Run(context.Background(), plan)
	elapsed := time.Since(start)

	assert.Equal(t, 1, report.SuccessfulUpdates)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.NotEmpty(t, snapshots)
}

func TestExecutor_Run_CancellationStopsEarly(t *testing.T) {
	d := newScriptedDispatcher()
	d.script(1, successResponse(), nil)
	d.script(2, successResponse(), nil)

	plan := PlanMap{
		1: {{MediaID: 1, SyncMetadata: &SyncMetadata{}}},
		2: {{MediaID: 2, SyncMetadata: &SyncMetadata{}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(d, nil, nil, 3)
	report := exec.Run(ctx, plan)

	assert.Equal(t, 2, report.SkippedEntries)
	assert.Equal(t, 0, report.SuccessfulUpdates)
}

func TestExecutor_RetryFailed_OnlyRetriesFailedMediaIDs(t *testing.T) {
	d := newScriptedDispatcher()
	d.script(2, successResponse(), nil)

	plan := PlanMap{
		1: {{MediaID: 1, SyncMetadata: &SyncMetadata{}}},
		2: {{MediaID: 2, SyncMetadata: &SyncMetadata{}}},
	}
	prevReport := Report{Errors: []SyncError{{MediaID: 2, Message: "boom"}}}

	exec := NewExecutor(d, nil, nil, 3)
	report := exec.RetryFailed(context.Background(), plan, prevReport)

	assert.Equal(t, 1, report.TotalEntries)
	assert.Equal(t, 1, report.SuccessfulUpdates)
	_, calledOne := d.calls[1]
	assert.False(t, calledOne)
}
