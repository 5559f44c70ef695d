// Package apiclient provides key-rotating, rate-limited, retrying, and
// circuit-broken outbound HTTP for a single external provider, matching the
// transport idiom of internal/clients/tradernet/sdk's direct http.Client
// usage while generalizing key rotation and retry from the original
// Python background_scheduler client helpers.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trading-core/internal/apierrors"
)

// Config configures one provider client.
type Config struct {
	Name              string
	BaseURL           string
	Keys              []string
	RequestsPerMinute int
	BurstLimit        int
	FailureThreshold  int
	RecoveryTimeout   time.Duration
	Retry             RetryConfig
	RequestTimeout    time.Duration
}

// Request describes one outbound call; the bearer-token header carrying
// the rotated key is attached by Client.Call, not by the caller.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header
}

// Response is the raw provider response; no domain-specific parsing
// happens in this package.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Health reports the client's current operating state.
type Health struct {
	CircuitState CircuitState
	FailureCount int
	WindowCount  int
	PerKey       []KeyMetrics
}

// Client applies rate limiting, key rotation, retry-with-backoff, and a
// circuit breaker around one provider's HTTP surface.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rateLimiter
	rotator    *keyRotator
	breaker    *circuitBreaker
	log        zerolog.Logger
}

// New builds a Client for cfg. Defaults mirror the original retry_handler
// and api_key_rotator modules.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    newRateLimiter(cfg.RequestsPerMinute, cfg.BurstLimit),
		rotator:    newKeyRotator(cfg.Keys),
		breaker:    newCircuitBreaker(cfg.FailureThreshold, cfg.RecoveryTimeout),
		log:        log.With().Str("component", "apiclient").Str("provider", cfg.Name).Logger(),
	}
}

// Call applies the rate limit, picks a key, issues the request with retry
// and exponential backoff, and updates key metrics and the circuit breaker.
// It fails fast with apierrors.CircuitOpenError when the breaker is open.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	if !c.breaker.allow() {
		return nil, apierrors.NewCircuitOpenError(c.cfg.Name)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		c.limiter.wait()

		key, keyIndex, ok := c.rotator.nextKey()
		if !ok {
			return nil, fmt.Errorf("apiclient: no keys configured for %s", c.cfg.Name)
		}

		resp, err := c.doRequest(ctx, key, req)
		if err == nil {
			c.rotator.recordSuccess(keyIndex)
			c.breaker.recordSuccess()
			return resp, nil
		}

		lastErr = err

		switch {
		case isRateLimited(err):
			c.rotator.recordRateLimit(keyIndex)
		default:
			c.rotator.recordFailure(keyIndex)
		}

		if apierrors.NonRetryable(err) {
			c.breaker.recordFailure()
			return nil, err
		}

		if attempt < c.cfg.Retry.MaxAttempts-1 {
			delay := c.cfg.Retry.backoffDelay(attempt)
			c.log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("call failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.breaker.recordFailure()
				return nil, ctx.Err()
			}
		}
	}

	c.breaker.recordFailure()
	return nil, fmt.Errorf("apiclient: all %d attempts failed: %w", c.cfg.Retry.MaxAttempts, lastErr)
}

func isRateLimited(err error) bool {
	var rl *apierrors.RateLimitedError
	return errors.As(err, &rl)
}

func (c *Client) doRequest(ctx context.Context, key string, req Request) (*Response, error) {
	url := c.cfg.BaseURL + req.Path

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, apierrors.NewValidationError("request", err.Error())
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierrors.NewTimeoutError(req.Path)
		}
		return nil, apierrors.NewStorageError("http_do", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.NewStorageError("http_read_body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apierrors.NewAuthFailureError(key, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apierrors.NewRateLimitedError(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		return nil, apierrors.NewStorageError("http_status", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 500)))
	case resp.StatusCode >= 400:
		return nil, apierrors.NewValidationError("response", fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(body), 500)))
	}

	return &Response{StatusCode: resp.StatusCode, Body: body, Header: resp.Header}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Health reports circuit state, failure count, per-key metrics, and the
// current rate-limit window occupancy.
func (c *Client) Health() Health {
	state, failures := c.breaker.snapshot()
	return Health{
		CircuitState: state,
		FailureCount: failures,
		WindowCount:  c.limiter.windowCount(),
		PerKey:       c.rotator.snapshot(),
	}
}
