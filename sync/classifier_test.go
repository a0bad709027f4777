package sync

import (
	"testing"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/stretchr/testify/assert"
)

func TestClassify_Success(t *testing.T) {
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"SaveMediaListEntry": map[string]interface{}{"id": float64(1)},
		},
	}
	c := Classify(resp, nil)
	assert.Equal(t, OutcomeSuccess, c.Outcome)
	assert.NotNil(t, c.Data)
}

func TestClassify_Success_DoubleNested(t *testing.T) {
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"data": map[string]interface{}{
				"SaveMediaListEntry": map[string]interface{}{"id": float64(1)},
			},
		},
	}
	c := Classify(resp, nil)
	assert.Equal(t, OutcomeSuccess, c.Outcome)
	assert.Contains(t, c.Data, "SaveMediaListEntry")
}

func TestClassify_GraphQLRateLimit_FromMessage(t *testing.T) {
	resp := map[string]interface{}{
		"errors": []interface{}{
			map[string]interface{}{"message": "Too Many Requests, retry after 30 seconds"},
		},
	}
	c := Classify(resp, nil)
	assert.Equal(t, OutcomeRateLimited, c.Outcome)
	assert.Equal(t, int64(30000), c.RetryAfterMs)
}

func TestClassify_GraphQLRateLimit_FromExtensions(t *testing.T) {
	resp := map[string]interface{}{
		"errors": []interface{}{
			map[string]interface{}{
				"message":    "Rate limit exceeded.",
				"extensions": map[string]interface{}{"retryAfter": float64(45)},
			},
		},
	}
	c := Classify(resp, nil)
	assert.Equal(t, OutcomeRateLimited, c.Outcome)
	assert.Equal(t, int64(45000), c.RetryAfterMs)
}

func TestClassify_GraphQLRateLimit_DefaultRetryAfter(t *testing.T) {
	resp := map[string]interface{}{
		"errors": []interface{}{map[string]interface{}{"message": "rate limited"}},
	}
	c := Classify(resp, nil)
	assert.Equal(t, OutcomeRateLimited, c.Outcome)
	assert.Equal(t, defaultRetryAfterMs, c.RetryAfterMs)
}

func TestClassify_GraphQL500Class(t *testing.T) {
	resp := map[string]interface{}{
		"errors": []interface{}{map[string]interface{}{"message": "Internal Server Error"}},
	}
	c := Classify(resp, nil)
	assert.Equal(t, OutcomeSoftRetry, c.Outcome)
}

func TestClassify_GraphQLDomainError(t *testing.T) {
	resp := map[string]interface{}{
		"errors": []interface{}{map[string]interface{}{"message": "Media not found"}},
	}
	c := Classify(resp, nil)
	assert.Equal(t, OutcomeHardFailure, c.Outcome)
}

func TestClassify_NilResponse(t *testing.T) {
	c := Classify(nil, nil)
	assert.Equal(t, OutcomeHardFailure, c.Outcome)
}

func TestClassify_ErrorSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"http rate limited", core.ErrHTTPRateLimited, OutcomeRateLimited},
		{"graphql rate limit sentinel", core.ErrGraphQLRateLimit, OutcomeRateLimited},
		{"http server error", core.ErrHTTPServer, OutcomeSoftRetry},
		{"network transport error", core.ErrNetworkTransport, OutcomeSoftRetry},
		{"no token", core.ErrNoToken, OutcomeHardFailure},
		{"http client error", core.ErrHTTPClient, OutcomeHardFailure},
		{"graphql domain error", core.ErrGraphQLDomain, OutcomeHardFailure},
		{"malformed response", core.ErrMalformedResponse, OutcomeHardFailure},
		{"cancelled", core.ErrCancelled, OutcomeHardFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(nil, tt.err)
			assert.Equal(t, tt.want, c.Outcome)
		})
	}
}

func TestClassify_RawError_500Heuristic(t *testing.T) {
	c := Classify(nil, errorWithMessage("upstream returned 500"))
	assert.Equal(t, OutcomeSoftRetry, c.Outcome)
}

type plainError struct{ msg string }

func (e plainError) Error() string { return e.msg }

func errorWithMessage(msg string) error { return plainError{msg: msg} }
