// Package anilist implements the five GraphQL operations the
// synchronizer issues against AniList's remote media-list collection
// (spec.md §6): updateMangaEntry, deleteMangaEntry, searchManga,
// getMangaByIds, and getUserMangaList.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rlalpha49/kenmeisync/core"
)

// Client issues raw GraphQL requests against the configured AniList
// endpoint. It implements pipeline.Transport; pipeline.Pipeline is
// the only caller that should hold one directly — everything else
// goes through the pipeline for spacing/retry/caching.
type Client struct {
	config     core.AniListConfig
	httpClient *http.Client
}

// NewClient builds a Client whose outbound http.Client.Transport is
// instrumented with otelhttp, so every GraphQL call carries a span
// (spec.md's ambient telemetry stack, §10.F).
func NewClient(config core.AniListConfig) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// Execute posts one GraphQL query/variables pair and returns the
// decoded {data, errors} envelope. A non-2xx HTTP status is mapped to
// core's sentinel taxonomy rather than returned as an opaque error,
// so classification never has to string-match a status code.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	if c.config.Token == "" {
		return nil, core.ErrNoToken
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encoding graphql request: %w", core.ErrMalformedResponse)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", core.ErrNetworkTransport)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.ErrCancelled
		}
		return nil, fmt.Errorf("%w: %v", core.ErrNetworkTransport, err)
	}
	defer resp.Body.Close()

	var envelope map[string]interface{}
	decodeErr := json.NewDecoder(resp.Body).Decode(&envelope)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return envelope, core.ErrHTTPRateLimited
	case resp.StatusCode >= 500:
		return envelope, core.ErrHTTPServer
	case resp.StatusCode >= 400:
		return envelope, core.ErrHTTPClient
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, decodeErr)
	}
	return envelope, nil
}
