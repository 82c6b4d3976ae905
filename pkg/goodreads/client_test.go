package goodreads

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/circuitbreaker"
	"bookreview/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) config.GoodreadsConfig {
	return config.GoodreadsConfig{
		Key:                "test-key",
		BaseURL:            baseURL,
		Timeout:            200 * time.Millisecond,
		RPS:                100,
		BreakerMaxFailures: 3,
		BreakerOpenTimeout: time.Minute,
		BreakerWindow:      time.Minute,
	}
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book/review_counts.json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "0380795272", r.URL.Query().Get("isbns"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"books":[{"id":29207858,"isbn":"0380795272","isbn13":"9780380795277",` +
			`"ratings_count":6418,"reviews_count":11817,"work_ratings_count":7265,"average_rating":"3.94"}]}`))
	}))
	defer server.Close()

	c := New(testConfig(server.URL), testLogger())
	res := c.Fetch(context.Background(), "0380795272")

	require.True(t, res.Available())
	assert.Equal(t, "", res.Reason())
	assert.Equal(t, 7265, res.Stats.ReviewCount)
	assert.Equal(t, 3.94, res.Stats.AverageRating)
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
		reason string
	}{
		{name: "unknown isbn 404", status: http.StatusNotFound, body: `No book with that ISBN`, kind: apperrors.ErrUpstreamRejected, reason: "rejected"},
		{name: "bad key 422", status: http.StatusUnprocessableEntity, body: `{"error":"invalid"}`, kind: apperrors.ErrUpstreamRejected, reason: "rejected"},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, kind: apperrors.ErrUpstreamUnavailable, reason: "unavailable"},
		{name: "not json", status: http.StatusOK, body: `<html></html>`, kind: apperrors.ErrUpstreamMalformed, reason: "malformed"},
		{name: "no books", status: http.StatusOK, body: `{"books":[]}`, kind: apperrors.ErrUpstreamMalformed, reason: "malformed"},
		{name: "bad average", status: http.StatusOK, body: `{"books":[{"work_ratings_count":3,"average_rating":"n/a"}]}`, kind: apperrors.ErrUpstreamMalformed, reason: "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := New(testConfig(server.URL), testLogger())
			res := c.Fetch(context.Background(), "0380795272")

			assert.False(t, res.Available())
			assert.Nil(t, res.Stats)
			assert.ErrorIs(t, res.Err, tt.kind)
			assert.Equal(t, tt.reason, res.Reason())
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := New(testConfig(url), testLogger())
	res := c.Fetch(context.Background(), "0380795272")

	assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamUnavailable)
}

func TestFetchTimeoutIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := New(cfg, testLogger())

	start := time.Now()
	res := c.Fetch(context.Background(), "0380795272")

	assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchDisabledWithoutKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Key = ""
	c := New(cfg, testLogger())

	res := c.Fetch(context.Background(), "0380795272")
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamUnavailable)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(testConfig(server.URL), testLogger())
	for i := 0; i < 3; i++ {
		c.Fetch(context.Background(), "0380795272")
	}
	require.Equal(t, int32(3), calls.Load())

	res := c.Fetch(context.Background(), "0380795272")
	assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not hit the upstream")
}

func TestRejectedDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(testConfig(server.URL), testLogger())
	for i := 0; i < 5; i++ {
		res := c.Fetch(context.Background(), "bad-isbn")
		assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamRejected)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestBurstOfLookupsDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"books":[{"isbn":"0380795272","work_ratings_count":7265,"average_rating":"3.94"}]}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RPS = 1
	cfg.Timeout = 300 * time.Millisecond
	c := New(cfg, testLogger())

	var wg sync.WaitGroup
	var available atomic.Int32
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Fetch(context.Background(), "0380795272").Available() {
				available.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), available.Load())
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.GetState())

	time.Sleep(1100 * time.Millisecond)
	res := c.Fetch(context.Background(), "0380795272")
	require.True(t, res.Available(), "healthy upstream must be reachable after a local burst: %v", res.Err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallerCancellationDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = time.Second
	c := New(cfg, testLogger())

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		res := c.Fetch(ctx, "0380795272")
		cancel()

		assert.ErrorIs(t, res.Err, apperrors.ErrUpstreamUnavailable)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.GetState())
}
