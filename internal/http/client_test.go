package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/catalogsync/import-service/internal/http/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerSecond: 0,
		MaxRetries:        2,
		InitialBackoffMs:  1,
		MaxBackoffMs:      5,
	}
}

func TestClient_GetBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := NewClient(fastConfig(), WithUserAgent("test-agent"))
	body, err := c.GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	body, err := NewClient(fastConfig()).GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "done", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(fastConfig()).GetBytes(context.Background(), srv.URL)
	require.Error(t, err)

	var fre *ratelimit.FetchRetryError
	require.True(t, errors.As(err, &fre))
	assert.Equal(t, http.StatusNotFound, fre.LastStatus)
	assert.Equal(t, 1, fre.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(fastConfig()).GetBytes(context.Background(), srv.URL)
	var fre *ratelimit.FetchRetryError
	require.True(t, errors.As(err, &fre))
	assert.Equal(t, 3, fre.Attempts)
	assert.Contains(t, fre.Error(), "HTTP 502")
}

func TestClient_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := NewClient(fastConfig(), WithMaxBodySize(16)).GetBytes(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.InitialBackoffMs = 10_000
	cfg.MaxBackoffMs = 10_000

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(cfg).GetBytes(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := ratelimit.Config{InitialBackoffMs: 100, MaxBackoffMs: 1000}

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{0, 100 * time.Millisecond, 125 * time.Millisecond},
		{1, 200 * time.Millisecond, 250 * time.Millisecond},
		{5, 1000 * time.Millisecond, 1250 * time.Millisecond},
	}
	for _, tt := range tests {
		d := ratelimit.CalculateBackoff(tt.attempt, cfg)
		assert.GreaterOrEqual(t, d, tt.min)
		assert.LessOrEqual(t, d, tt.max)
	}

	d := ratelimit.CalculateRateLimitBackoff(0, cfg, "2")
	assert.GreaterOrEqual(t, d, 2*time.Second)
	assert.Less(t, d, 3*time.Second)
}
