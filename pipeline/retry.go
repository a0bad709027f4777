package pipeline

import (
	"math/rand"
	"time"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/rlalpha49/kenmeisync/sync"
)

// recordOutcome emits a low-cardinality counter per classifier
// outcome (spec.md §4.E), never raw media ids or error strings as
// label values.
func recordOutcome(outcome sync.Outcome) {
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("pipeline.dispatch.outcomes", "outcome", string(outcome))
	}
}

// dispatchWithRetry sends one operation through the transport,
// retrying transient failures per spec.md §4.A's exact formulas:
//
//   - HTTP 429 / GraphQL rate limit: wait the server-advertised
//     retryAfter window (tracked via markRateLimited, observed by the
//     next waitForSlot), then retry without consuming a retry-budget
//     attempt.
//   - Network transport / HTTP 5xx: exponential backoff
//     1000ms * 2^attempt, clamped to [MinBackoffFloor, MaxBackoff],
//     with up to JitterFraction of random jitter added.
//   - Anything else: returned immediately, no retry.
func (p *Pipeline) dispatchWithRetry(op *operation) (map[string]interface{}, error) {
	maxRetries := p.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	attempt := 0
	for {
		resp, err := p.execute(op)
		classification := sync.Classify(resp, err)

		recordOutcome(classification.Outcome)

		switch classification.Outcome {
		case sync.OutcomeSuccess:
			return resp, nil

		case sync.OutcomeRateLimited:
			p.markRateLimited(classification.RetryAfterMs)
			p.waitForSlot(op.ctx)
			if op.ctx.Err() != nil {
				return nil, op.ctx.Err()
			}
			continue // does not consume the retry budget

		case sync.OutcomeSoftRetry:
			attempt++
			if attempt > maxRetries {
				return resp, err
			}
			sleepCtx(op.ctx, p.backoff(attempt))
			if op.ctx.Err() != nil {
				return nil, op.ctx.Err()
			}
			continue

		default: // sync.OutcomeHardFailure
			return resp, err
		}
	}
}

// execute runs one transport call, through the circuit breaker when
// one is configured. core.ErrCircuitBreakerOpen surfaces to the caller
// as a hard failure (sync.Classify has no sentinel match for it, so it
// falls through to the default branch) rather than being retried,
// since retrying while the breaker is open would defeat the point of
// failing fast.
func (p *Pipeline) execute(op *operation) (map[string]interface{}, error) {
	if p.breaker == nil {
		return p.transport.Execute(op.ctx, op.query, op.variables)
	}

	var resp map[string]interface{}
	err := p.breaker.Execute(op.ctx, func() error {
		var execErr error
		resp, execErr = p.transport.Execute(op.ctx, op.query, op.variables)
		return execErr
	})
	return resp, err
}

// backoff computes spec.md §4.A's exact retry delay: 1000ms * 2^attempt,
// clamped to [MinBackoffFloor, MaxBackoff], plus up to JitterFraction
// of random jitter.
func (p *Pipeline) backoff(attempt int) time.Duration {
	base := time.Duration(1000*(1<<uint(attempt))) * time.Millisecond

	floor := p.config.MinBackoffFloor
	if floor <= 0 {
		floor = 1 * time.Second
	}
	ceiling := p.config.MaxBackoff
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}

	if base < floor {
		base = floor
	}
	if base > ceiling {
		base = ceiling
	}

	jitterFraction := p.config.JitterFraction
	if jitterFraction <= 0 {
		return base
	}
	jitter := time.Duration(float64(base) * jitterFraction * rand.Float64())
	return base + jitter
}
