// Package httpclient wraps net/http with bounded exponential backoff,
// Retry-After honoring, and retryable-failure classification, so adapters
// get a single call that yields either a final response or a raised
// transport failure.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jedmorris/syncforge/internal/syncerr"
	"github.com/jedmorris/syncforge/internal/telemetry"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 60 * time.Second
)

var retryableStatus = map[int]bool{
	429: true, 500: true, 502: true, 503: true, 504: true,
}

// Client wraps an *http.Client with retry semantics.
type Client struct {
	inner      *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	logger     *slog.Logger
}

// New constructs a Client with a 30s transport timeout, matching the
// timeout budget in SPEC_FULL.md §5.
func New(logger *slog.Logger) *Client {
	return &Client{
		inner:      &http.Client{Timeout: 30 * time.Second},
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		logger:     logger,
	}
}

// Do issues a request with retry-on-retryable-status and
// retry-on-transport-error semantics. On a non-retryable response, or once
// retries are exhausted on a retryable response, returns that response —
// the caller is responsible for closing its body. Only transport-level
// failures that outlive retries are returned as an error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		resp, err := c.inner.Do(req)
		if err == nil {
			if !retryableStatus[resp.StatusCode] {
				return resp, nil
			}
			if attempt >= c.MaxRetries {
				return resp, nil
			}
			delay := c.calculateDelay(resp, attempt)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.logger.Warn("retryable response, retrying",
				"status", resp.StatusCode, "attempt", attempt+1, "max_retries", c.MaxRetries, "delay_s", delay.Seconds())
			telemetry.HTTPClientRetriesTotal.WithLabelValues(fmt.Sprintf("status_%d", resp.StatusCode)).Inc()
			if !c.wait(req.Context(), delay) {
				return resp, nil
			}
			continue
		}

		lastErr = err
		if !isRetryableTransportError(err) || attempt >= c.MaxRetries {
			return nil, &syncerr.TransportError{Err: err}
		}

		delay := time.Duration(math.Min(float64(c.BaseDelay)*math.Pow(2, float64(attempt)), float64(c.MaxDelay)))
		c.logger.Warn("transport error, retrying", "error", err, "attempt", attempt+1, "delay_s", delay.Seconds())
		telemetry.HTTPClientRetriesTotal.WithLabelValues("transport_error").Inc()
		if !c.wait(req.Context(), delay) {
			return nil, &syncerr.TransportError{Err: err}
		}
	}

	return nil, &syncerr.TransportError{Err: lastErr}
}

func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// calculateDelay honors Retry-After when present and parseable, clamped to
// MaxDelay; otherwise exponential backoff: base*2^attempt, clamped.
func (c *Client) calculateDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil {
			d := time.Duration(secs * float64(time.Second))
			if d > c.MaxDelay {
				return c.MaxDelay
			}
			return d
		}
	}
	d := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

func isRetryableTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
