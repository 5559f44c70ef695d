package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trading-core/internal/apierrors"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, ExponentialBase: 2, Jitter: false}
}

func TestClient_CallSucceedsOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, Keys: []string{"k1"}, RequestsPerMinute: 60, FailureThreshold: 5, Retry: fastRetry()}, zerolog.Nop())

	resp, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "ok")
}

func TestClient_RetriesTransientFailureThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, Keys: []string{"k1"}, RequestsPerMinute: 60, FailureThreshold: 5, Retry: fastRetry()}, zerolog.Nop())

	resp, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NonRetryableFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, Keys: []string{"k1"}, RequestsPerMinute: 60, FailureThreshold: 5, Retry: fastRetry()}, zerolog.Nop())

	_, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_AuthFailureRotatesKeyAcrossAttempts(t *testing.T) {
	var seenKeys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKeys = append(seenKeys, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, Keys: []string{"k1", "k2"}, RequestsPerMinute: 60, FailureThreshold: 10, Retry: fastRetry()}, zerolog.Nop())

	_, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
	require.Error(t, err)
	assert.GreaterOrEqual(t, len(seenKeys), 2)
	assert.NotEqual(t, seenKeys[0], seenKeys[1])
}

func TestClient_ServerErrorRecordsPerKeyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, Keys: []string{"k1"}, RequestsPerMinute: 60, FailureThreshold: 10, Retry: fastRetry()}, zerolog.Nop())

	_, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
	require.Error(t, err)

	metrics := c.rotator.snapshot()
	require.Len(t, metrics, 1)
	assert.Equal(t, fastRetry().MaxAttempts, metrics[0].ConsecutiveFailures)
	assert.Equal(t, fastRetry().MaxAttempts, metrics[0].TotalFailures)
}

func TestClient_RateLimitedRecordsRateLimitHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, Keys: []string{"k1"}, RequestsPerMinute: 60, FailureThreshold: 10, Retry: fastRetry()}, zerolog.Nop())

	_, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
	require.Error(t, err)

	metrics := c.rotator.snapshot()
	require.Len(t, metrics, 1)
	assert.Equal(t, fastRetry().MaxAttempts, metrics[0].RateLimitHits)
	assert.Equal(t, fastRetry().MaxAttempts, metrics[0].TotalFailures)
}

func TestCircuitBreaker_OpensAfterThresholdAndFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Name: "test", BaseURL: srv.URL, Keys: []string{"k1", "k2"}, RequestsPerMinute: 600, FailureThreshold: 3, Retry: fastRetry()}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
		require.Error(t, err)
	}

	callsBeforeOpen := atomic.LoadInt32(&calls)

	_, err := c.Call(context.Background(), Request{Method: "GET", Path: "/x"})
	require.Error(t, err)
	var circuitErr *apierrors.CircuitOpenError
	assert.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, callsBeforeOpen, atomic.LoadInt32(&calls), "4th call must fail fast without reaching the provider")

	health := c.Health()
	assert.Equal(t, CircuitOpen, health.CircuitState)
}

func TestCircuitBreaker_HalfOpenProbeRecoversToClosedOnSuccess(t *testing.T) {
	breaker := newCircuitBreaker(1, 10*time.Millisecond)

	assert.True(t, breaker.allow())
	breaker.recordFailure()
	state, _ := breaker.snapshot()
	assert.Equal(t, CircuitOpen, state)

	assert.False(t, breaker.allow(), "still within recovery timeout")

	time.Sleep(15 * time.Millisecond)
	assert.True(t, breaker.allow(), "recovery timeout elapsed, probe allowed")
	assert.False(t, breaker.allow(), "only one probe in flight at a time")

	breaker.recordSuccess()
	state, _ = breaker.snapshot()
	assert.Equal(t, CircuitClosed, state)
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	breaker := newCircuitBreaker(1, 10*time.Millisecond)
	breaker.allow()
	breaker.recordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, breaker.allow())

	breaker.recordFailure()
	state, _ := breaker.snapshot()
	assert.Equal(t, CircuitOpen, state)
}

func TestKeyRotator_PrefersLowestScoringHealthyKey(t *testing.T) {
	r := newKeyRotator([]string{"a", "b", "c"})

	key, idx, ok := r.nextKey()
	require.True(t, ok)
	assert.Equal(t, "a", key)
	r.recordFailure(idx)
	r.recordFailure(idx)

	key2, idx2, _ := r.nextKey()
	assert.NotEqual(t, idx, idx2)
	assert.Contains(t, []string{"b", "c"}, key2)
}

func TestKeyRotator_FallsBackToRoundRobinWhenAllUnhealthy(t *testing.T) {
	r := newKeyRotator([]string{"a", "b"})

	for _, idx := range []int{0, 1} {
		for i := 0; i < unhealthyThreshold; i++ {
			r.recordFailure(idx)
		}
	}

	_, idx1, ok := r.nextKey()
	require.True(t, ok)
	_, idx2, ok := r.nextKey()
	require.True(t, ok)
	assert.NotEqual(t, idx1, idx2)
}

func TestRateLimiter_BlocksUntilWindowFrees(t *testing.T) {
	l := newRateLimiter(2, 2)
	l.window = 50 * time.Millisecond
	l.burstSpacer = 0

	start := time.Now()
	l.wait()
	l.wait()
	l.wait() // third call must wait for the window to free up
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestRateLimiter_WindowCountReflectsActiveRequests(t *testing.T) {
	l := newRateLimiter(10, 10)
	l.wait()
	l.wait()
	assert.Equal(t, 2, l.windowCount())
}

func TestRetryConfig_BackoffDelayRespectsCapAndJitterBounds(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: 2 * time.Second, MaxBackoff: 120 * time.Second, ExponentialBase: 2, Jitter: true}

	for attempt := 0; attempt < 10; attempt++ {
		delay := cfg.backoffDelay(attempt)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.LessOrEqual(t, delay, cfg.MaxBackoff+cfg.MaxBackoff/5)
	}
}
