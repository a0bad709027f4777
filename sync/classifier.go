package sync

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/rlalpha49/kenmeisync/core"
)

// Outcome is the result classifier's verdict for one dispatched
// operation, per spec.md §4.E.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeSoftRetry   Outcome = "soft_retry" // 5xx-class, retryable
	OutcomeHardFailure Outcome = "hard_failure"
)

// Classification is the full result of classifying one response or
// thrown error.
type Classification struct {
	Outcome      Outcome
	RetryAfterMs int64
	Message      string
	Data         map[string]interface{}
}

var (
	rateLimitMessage  = regexp.MustCompile(`(?i)rate limit|too many requests`)
	retryAfterSeconds = regexp.MustCompile(`(?i)(\d+)\s*(second|sec|s)`)
	serverErrorMarker = regexp.MustCompile(`(?i)\b500\b|internal server error`)
)

const defaultRetryAfterMs int64 = 60000

// Classify inspects a GraphQL response envelope (decoded into
// resp, which may be nil) and an error returned alongside it
// (err, which may be nil — exactly one of resp/err carries the
// outcome) and produces a Classification.
//
// resp is expected to unwrap either {data: {...}} or the double-nested
// {data: {data: {...}}} shape some GraphQL gateways wrap their
// responses in (spec.md §4.E); both are tried.
func Classify(resp map[string]interface{}, err error) Classification {
	if err != nil {
		return classifyError(err)
	}
	return classifyResponse(resp)
}

func classifyResponse(resp map[string]interface{}) Classification {
	if resp == nil {
		return Classification{
			Outcome: OutcomeHardFailure,
			Message: "empty response",
		}
	}

	if errs, ok := resp["errors"].([]interface{}); ok && len(errs) > 0 {
		return classifyGraphQLErrors(errs)
	}

	data := unwrapData(resp)
	return Classification{
		Outcome: OutcomeSuccess,
		Data:    data,
	}
}

// unwrapData tries data.X first, falling back to data.data.X when the
// gateway double-wraps (spec.md §4.E).
func unwrapData(resp map[string]interface{}) map[string]interface{} {
	top, ok := resp["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	if inner, ok := top["data"].(map[string]interface{}); ok {
		return inner
	}
	return top
}

func classifyGraphQLErrors(errs []interface{}) Classification {
	var messages []string
	var retryAfterMs int64

	for _, raw := range errs {
		e, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if msg, ok := e["message"].(string); ok {
			messages = append(messages, msg)
		}
		if ra := extractRetryAfter(e); ra > 0 {
			retryAfterMs = ra
		}
	}

	joined := strings.Join(messages, "; ")

	if rateLimitMessage.MatchString(joined) {
		if retryAfterMs == 0 {
			retryAfterMs = retryAfterMsFromMessage(joined)
		}
		return Classification{
			Outcome:      OutcomeRateLimited,
			RetryAfterMs: retryAfterMs,
			Message:      joined,
		}
	}

	if serverErrorMarker.MatchString(joined) {
		return Classification{
			Outcome: OutcomeSoftRetry,
			Message: joined,
		}
	}

	return Classification{
		Outcome: OutcomeHardFailure,
		Message: joined,
	}
}

// extractRetryAfter pulls extensions.retryAfter (seconds) out of one
// GraphQL error entry, converting to milliseconds.
func extractRetryAfter(e map[string]interface{}) int64 {
	ext, ok := e["extensions"].(map[string]interface{})
	if !ok {
		return 0
	}
	switch v := ext["retryAfter"].(type) {
	case float64:
		return int64(v * 1000)
	case int:
		return int64(v) * 1000
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(n * 1000)
		}
	}
	return 0
}

func retryAfterMsFromMessage(msg string) int64 {
	m := retryAfterSeconds.FindStringSubmatch(msg)
	if len(m) < 2 {
		return defaultRetryAfterMs
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultRetryAfterMs
	}
	return int64(secs) * 1000
}

// classifyError classifies an error value thrown by the pipeline's
// transport layer (as opposed to a well-formed GraphQL error
// payload), using core's sentinel taxonomy rather than string
// matching wherever the error was produced internally. Errors that
// reach here from outside core's taxonomy (e.g. a raw transport
// error) fall back to the same message-pattern detection the GraphQL
// payload branch uses, since the over-inclusive 500-class detection
// in spec.md §4.E is deliberately string-based as a last resort.
func classifyError(err error) Classification {
	msg := err.Error()

	switch {
	case isSentinel(err, httpRateLimitedSentinels...):
		return Classification{
			Outcome:      OutcomeRateLimited,
			RetryAfterMs: retryAfterMsFromMessage(msg),
			Message:      msg,
		}
	case isSentinel(err, softRetrySentinels...):
		return Classification{Outcome: OutcomeSoftRetry, Message: msg}
	case isSentinel(err, hardFailureSentinels...):
		return Classification{Outcome: OutcomeHardFailure, Message: msg}
	}

	if rateLimitMessage.MatchString(msg) {
		return Classification{
			Outcome:      OutcomeRateLimited,
			RetryAfterMs: retryAfterMsFromMessage(msg),
			Message:      msg,
		}
	}
	if is500Class(err, msg) {
		return Classification{Outcome: OutcomeSoftRetry, Message: msg}
	}

	return Classification{Outcome: OutcomeHardFailure, Message: msg}
}

// is500Class implements the deliberately over-inclusive 500-class
// detection from spec.md §4.E: the message mentions 500/"Internal
// Server Error", or any wrapped value carries a status==500 field, or
// the error's JSON-serialized form contains "status":500.
func is500Class(err error, msg string) bool {
	if serverErrorMarker.MatchString(msg) {
		return true
	}

	type statusHolder interface{ StatusCode() int }
	if sh, ok := err.(statusHolder); ok && sh.StatusCode() == 500 {
		return true
	}

	if b, marshalErr := json.Marshal(err); marshalErr == nil {
		if strings.Contains(string(b), `"status":500`) {
			return true
		}
	}

	return false
}

func isSentinel(err error, sentinels ...error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

var (
	httpRateLimitedSentinels = []error{core.ErrHTTPRateLimited, core.ErrGraphQLRateLimit}
	softRetrySentinels       = []error{core.ErrHTTPServer, core.ErrNetworkTransport}
	hardFailureSentinels     = []error{
		core.ErrNoToken,
		core.ErrHTTPClient,
		core.ErrGraphQLDomain,
		core.ErrMalformedResponse,
		core.ErrCancelled,
	}
)
