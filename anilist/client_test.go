package anilist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rlalpha49/kenmeisync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Execute_NoTokenReturnsErrNoToken(t *testing.T) {
	c := NewClient(core.AniListConfig{Endpoint: "http://unused", RequestTimeout: time.Second})
	_, err := c.Execute(context.Background(), "query{}", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoToken)
}

func TestClient_Execute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"Viewer": map[string]interface{}{"id": 1}},
		})
	}))
	defer srv.Close()

	c := NewClient(core.AniListConfig{Endpoint: srv.URL, Token: "test-token", RequestTimeout: 2 * time.Second})
	resp, err := c.Execute(context.Background(), "query{Viewer{id}}", nil)
	require.NoError(t, err)
	assert.NotNil(t, resp["data"])
}

func TestClient_Execute_RateLimitedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": []interface{}{}})
	}))
	defer srv.Close()

	c := NewClient(core.AniListConfig{Endpoint: srv.URL, Token: "t", RequestTimeout: 2 * time.Second})
	_, err := c.Execute(context.Background(), "query{}", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHTTPRateLimited)
}

func TestClient_Execute_ServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer srv.Close()

	c := NewClient(core.AniListConfig{Endpoint: srv.URL, Token: "t", RequestTimeout: 2 * time.Second})
	_, err := c.Execute(context.Background(), "query{}", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHTTPServer)
}

func TestClient_Execute_ClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer srv.Close()

	c := NewClient(core.AniListConfig{Endpoint: srv.URL, Token: "t", RequestTimeout: 2 * time.Second})
	_, err := c.Execute(context.Background(), "query{}", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHTTPClient)
}
