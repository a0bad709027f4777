package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	responses []opResult
	calls     int
	callTimes []time.Time
}

func (f *fakeTransport) Execute(_ context.Context, _ string, _ map[string]interface{}) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callTimes = append(f.callTimes, time.Now())
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return f.responses[len(f.responses)-1].resp, f.responses[len(f.responses)-1].err
	}
	return f.responses[i].resp, f.responses[i].err
}

func successEnvelope() map[string]interface{} {
	return map[string]interface{}{"data": map[string]interface{}{"ok": true}}
}

func fastRateLimitConfig() core.RateLimitConfig {
	return core.RateLimitConfig{
		MaxRequestsPerMinute: 6000, // ~10ms interval, keeps tests fast
		MaxRetries:           3,
		MaxBackoff:           50 * time.Millisecond,
		MinBackoffFloor:      5 * time.Millisecond,
		CacheTTL:             time.Minute,
		IterationBudget:      250 * time.Millisecond,
		YieldDelay:           time.Millisecond,
	}
}

func TestPipeline_Dispatch_Success(t *testing.T) {
	ft := &fakeTransport{responses: []opResult{{resp: successEnvelope()}}}
	p := New(ft, fastRateLimitConfig(), core.ResilienceConfig{}, nil)
	defer p.Close()

	resp, err := p.Dispatch(context.Background(), 1, "mutation{}", nil)
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestPipeline_Dispatch_EnforcesSpacing(t *testing.T) {
	cfg := fastRateLimitConfig()
	cfg.MaxRequestsPerMinute = 120 // 500ms interval
	ft := &fakeTransport{responses: []opResult{{resp: successEnvelope()}, {resp: successEnvelope()}}}
	p := New(ft, cfg, core.ResilienceConfig{}, nil)
	defer p.Close()

	_, _ = p.Dispatch(context.Background(), 1, "q", nil)
	_, _ = p.Dispatch(context.Background(), 2, "q", nil)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Len(t, ft.callTimes, 2)
	gap := ft.callTimes[1].Sub(ft.callTimes[0])
	assert.GreaterOrEqual(t, gap, 400*time.Millisecond)
}

func TestPipeline_Dispatch_RetriesOnSoftFailure(t *testing.T) {
	ft := &fakeTransport{responses: []opResult{
		{resp: map[string]interface{}{"errors": []interface{}{map[string]interface{}{"message": "Internal Server Error"}}}},
		{resp: successEnvelope()},
	}}
	p := New(ft, fastRateLimitConfig(), core.ResilienceConfig{}, nil)
	defer p.Close()

	resp, err := p.Dispatch(context.Background(), 1, "q", nil)
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 2, ft.calls)
}

func TestPipeline_Dispatch_RateLimitedThenSucceeds(t *testing.T) {
	ft := &fakeTransport{responses: []opResult{
		{resp: map[string]interface{}{"errors": []interface{}{
			map[string]interface{}{"message": "rate limited", "extensions": map[string]interface{}{"retryAfter": float64(0)}},
		}}},
		{resp: successEnvelope()},
	}}
	p := New(ft, fastRateLimitConfig(), core.ResilienceConfig{}, nil)
	defer p.Close()

	resp, err := p.Dispatch(context.Background(), 1, "q", nil)
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestPipeline_Dispatch_CancellationReturnsEarly(t *testing.T) {
	ft := &fakeTransport{responses: []opResult{{resp: successEnvelope()}}}
	p := New(ft, fastRateLimitConfig(), core.ResilienceConfig{}, nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Dispatch(ctx, 1, "q", nil)
	assert.Error(t, err)
}

func TestPipeline_Search_CachesResult(t *testing.T) {
	ft := &fakeTransport{responses: []opResult{{resp: successEnvelope()}}}
	p := New(ft, fastRateLimitConfig(), core.ResilienceConfig{}, nil)
	defer p.Close()

	ctx := context.Background()
	_, err := p.Search(ctx, "one piece", "query{}", map[string]interface{}{"term": "one piece"})
	require.NoError(t, err)
	_, err = p.Search(ctx, "one piece", "query{}", map[string]interface{}{"term": "one piece"})
	require.NoError(t, err)

	assert.Equal(t, 1, ft.calls, "second search with identical query/variables must be served from cache")
}

func TestPipeline_InvalidateTerm_ForcesRefetch(t *testing.T) {
	ft := &fakeTransport{responses: []opResult{{resp: successEnvelope()}, {resp: successEnvelope()}}}
	p := New(ft, fastRateLimitConfig(), core.ResilienceConfig{}, nil)
	defer p.Close()

	ctx := context.Background()
	_, _ = p.Search(ctx, "naruto", "query{}", map[string]interface{}{"term": "naruto"})
	p.InvalidateTerm("naruto")
	_, _ = p.Search(ctx, "naruto", "query{}", map[string]interface{}{"term": "naruto"})

	assert.Equal(t, 2, ft.calls)
}

func TestPipeline_CircuitBreaker_DomainErrorPassesThrough(t *testing.T) {
	ft := &fakeTransport{responses: []opResult{
		{err: core.ErrGraphQLDomain},
	}}
	resilienceCfg := core.ResilienceConfig{
		CircuitBreaker: core.CircuitBreakerConfig{
			Enabled:          true,
			Threshold:        1,
			Timeout:          time.Minute,
			HalfOpenRequests: 1,
		},
	}
	p := New(ft, fastRateLimitConfig(), resilienceCfg, nil)
	defer p.Close()
	require.NotNil(t, p.breaker, "circuit breaker should be constructed when enabled")

	ctx := context.Background()
	_, err := p.Dispatch(ctx, 1, "mutation{}", nil)
	assert.ErrorIs(t, err, core.ErrGraphQLDomain, "GraphQL domain errors do not count toward the breaker per DefaultErrorClassifier")
}
