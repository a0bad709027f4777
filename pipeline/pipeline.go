// Package pipeline implements the rate-limited request pipeline
// (spec.md §4.A): a single FIFO dispatch queue that serializes every
// outbound GraphQL call through fixed inter-request spacing, retries
// transient failures with backoff, and serves cacheable reads from a
// short-lived in-process cache.
package pipeline

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/rlalpha49/kenmeisync/resilience"
	"github.com/rlalpha49/kenmeisync/telemetry"
)

// Transport issues one GraphQL call and returns the decoded response
// envelope (or an error, for transport-level failures that never
// produced a parseable body). anilist.Client implements this.
type Transport interface {
	Execute(ctx context.Context, query string, variables map[string]interface{}) (map[string]interface{}, error)
}

// operation is one queued unit of work.
type operation struct {
	ctx       context.Context
	mediaID   int
	query     string
	variables map[string]interface{}
	cacheKey  string
	cacheTTL  time.Duration

	result chan opResult
}

type opResult struct {
	resp map[string]interface{}
	err  error
}

// Pipeline serializes outbound calls through a FIFO queue, enforcing
// the configured request spacing and retrying transient failures
// per spec.md §4.A. It implements sync.Dispatcher.
type Pipeline struct {
	transport Transport
	config    core.RateLimitConfig
	logger    core.Logger
	cache     *readCache
	breaker   core.CircuitBreaker

	mu              sync.Mutex
	queue           *list.List
	notifyEmpty     chan struct{}
	lastDequeueTime time.Time
	rateLimitUntil  time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Pipeline and starts its dispatch loop in a
// background goroutine. Call Close to stop it. When resilienceCfg's
// circuit breaker is enabled, every outbound call additionally runs
// through it as a protective layer on top of (not instead of) the
// pipeline's own rate-limit/backoff handling in dispatchWithRetry.
func New(transport Transport, config core.RateLimitConfig, resilienceCfg core.ResilienceConfig, logger core.Logger) *Pipeline {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	p := &Pipeline{
		transport:   transport,
		config:      config,
		logger:      logger,
		cache:       newReadCache(config.CacheTTL),
		queue:       list.New(),
		notifyEmpty: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	if resilienceCfg.CircuitBreaker.Enabled {
		breaker, err := newCircuitBreaker(resilienceCfg.CircuitBreaker, logger)
		if err != nil {
			logger.Warn("circuit breaker disabled: invalid configuration", map[string]interface{}{"error": err.Error()})
		} else {
			p.breaker = breaker
		}
	}
	go p.loop()
	return p
}

// newCircuitBreaker maps the config layer's simplified
// core.CircuitBreakerConfig onto resilience's richer runtime
// configuration through its single construction entry point. When
// telemetry has been wired in globally (cmd/kenmeisync/main.go's
// initTelemetry), the breaker's success/failure/rejection counts are
// recorded as OTel instruments instead of being dropped.
func newCircuitBreaker(cfg core.CircuitBreakerConfig, logger core.Logger) (*resilience.CircuitBreaker, error) {
	const name = "anilist-graphql"

	// Fall back to the package's own defaults for whichever knobs the
	// loaded config left at zero value, instead of letting a partially
	// populated config silently disable volume/sleep/half-open gating.
	defaults := core.DefaultCircuitBreakerParams(name).Config
	threshold, timeout, halfOpen := cfg.Threshold, cfg.Timeout, cfg.HalfOpenRequests
	if threshold <= 0 {
		threshold = defaults.Threshold
	}
	if timeout <= 0 {
		timeout = defaults.Timeout
	}
	if halfOpen <= 0 {
		halfOpen = defaults.HalfOpenRequests
	}

	deps := resilience.ResilienceDependencies{
		Logger:           logger,
		Telemetry:        telemetry.GetTelemetryProvider(),
		VolumeThreshold:  threshold,
		SleepWindow:      timeout,
		HalfOpenRequests: halfOpen,
	}
	return resilience.CreateCircuitBreaker(name, deps)
}

// Close stops the dispatch loop. Queued operations already enqueued
// are still drained before the loop exits.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Dispatch enqueues one GraphQL call and blocks until it has been
// sent (respecting spacing and retry) or the context is cancelled.
// This is the sync.Executor-facing entry point (spec.md §4.D).
func (p *Pipeline) Dispatch(ctx context.Context, mediaID int, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	op := &operation{
		ctx:       ctx,
		mediaID:   mediaID,
		query:     query,
		variables: variables,
		result:    make(chan opResult, 1),
	}
	p.enqueue(op)

	select {
	case r := <-op.result:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, core.ErrCancelled
	}
}

// Search issues a cacheable searchManga lookup (spec.md §6): results
// are served from the sha1-keyed read cache when present and fresh,
// invalidated by CacheTTL.
func (p *Pipeline) Search(ctx context.Context, term string, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	key := cacheKeyFor(query, variables)
	if cached, ok := p.cache.get(key); ok {
		return cached, nil
	}

	op := &operation{
		ctx:       ctx,
		query:     query,
		variables: variables,
		cacheKey:  key,
		cacheTTL:  p.config.CacheTTL,
		result:    make(chan opResult, 1),
	}
	p.enqueue(op)

	select {
	case r := <-op.result:
		if r.err == nil {
			p.cache.set(key, term, r.resp, p.config.CacheTTL)
		}
		return r.resp, r.err
	case <-ctx.Done():
		return nil, core.ErrCancelled
	}
}

// InvalidateTerm drops every cached response keyed under term,
// per spec.md §4.A's term→keys invalidation index. The pipeline
// never calls it itself; a dispatched mutation leaves cached
// search results in place.
func (p *Pipeline) InvalidateTerm(term string) {
	p.cache.invalidateTerm(term)
}

func (p *Pipeline) enqueue(op *operation) {
	p.mu.Lock()
	p.queue.PushBack(op)
	depth := p.queue.Len()
	p.mu.Unlock()

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("pipeline.dispatch.enqueued")
		registry.Gauge("pipeline.queue_depth", float64(depth))
	}

	select {
	case p.notifyEmpty <- struct{}{}:
	default:
	}
}

// loop is the pipeline's single dispatch goroutine. It pops the
// oldest queued operation, sleeps out whatever spacing or rate-limit
// window remains, dispatches with retry, and repeats — yielding after
// an iteration budget so a long queue never starves other goroutines
// (spec.md §4.A's soft iteration budget / yield delay).
func (p *Pipeline) loop() {
	budget := p.config.IterationBudget
	if budget <= 0 {
		budget = core.DefaultIterationBudget
	}
	yieldDelay := p.config.YieldDelay
	if yieldDelay <= 0 {
		yieldDelay = core.DefaultYieldDelay
	}

	for {
		select {
		case <-p.done:
			p.mu.Lock()
			pending := p.queue.Len()
			p.mu.Unlock()
			if pending == 0 {
				return
			}
		default:
		}

		op := p.dequeue()
		if op == nil {
			select {
			case <-p.notifyEmpty:
			case <-p.done:
				return
			}
			continue
		}

		iterationStart := time.Now()
		p.waitForSlot(op.ctx)

		resp, err := p.dispatchWithRetry(op)
		if registry := core.GetGlobalMetricsRegistry(); registry != nil {
			registry.Histogram("pipeline.dispatch.duration_ms", float64(time.Since(iterationStart).Milliseconds()))
		}
		op.result <- opResult{resp: resp, err: err}

		if time.Since(iterationStart) > budget {
			time.Sleep(yieldDelay)
		}
	}
}

func (p *Pipeline) dequeue() *operation {
	p.mu.Lock()
	defer p.mu.Unlock()

	front := p.queue.Front()
	if front == nil {
		return nil
	}
	p.queue.Remove(front)
	p.lastDequeueTime = time.Now()
	return front.Value.(*operation)
}

// waitForSlot sleeps out whatever is left of the fixed inter-request
// interval since the last dequeue, and the remainder of any
// server-advertised rate-limit window still in effect.
func (p *Pipeline) waitForSlot(ctx context.Context) {
	p.mu.Lock()
	last := p.lastDequeueTime
	rateLimitUntil := p.rateLimitUntil
	p.mu.Unlock()

	interval := p.config.Interval()
	if interval > 0 && !last.IsZero() {
		if wait := interval - time.Since(last); wait > 0 {
			sleepCtx(ctx, wait)
		}
	}
	if !rateLimitUntil.IsZero() {
		if wait := time.Until(rateLimitUntil); wait > 0 {
			sleepCtx(ctx, wait)
		}
	}
}

func (p *Pipeline) markRateLimited(retryAfterMs int64) {
	p.mu.Lock()
	p.rateLimitUntil = time.Now().Add(time.Duration(retryAfterMs) * time.Millisecond)
	p.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
