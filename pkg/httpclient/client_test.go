package httpclient

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoRetriesRetryableStatusThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(discardLogger())
	c.BaseDelay = time.Millisecond
	c.MaxDelay = time.Millisecond

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(discardLogger())
	c.BaseDelay = time.Millisecond
	c.MaxDelay = time.Millisecond
	c.MaxRetries = 2

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do should return the last response, not an error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if calls != 3 { // initial attempt + 2 retries
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsImmediatelyOnNonRetryableStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(discardLogger())
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 404)", calls)
	}
}

func TestCalculateDelayHonorsRetryAfter(t *testing.T) {
	c := New(discardLogger())
	c.MaxDelay = 60 * time.Second

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"5"}}}
	got := c.calculateDelay(resp, 0)
	if got != 5*time.Second {
		t.Errorf("delay = %v, want 5s", got)
	}
}

func TestCalculateDelayClampsRetryAfterToMaxDelay(t *testing.T) {
	c := New(discardLogger())
	c.MaxDelay = 10 * time.Second

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"9999"}}}
	got := c.calculateDelay(resp, 0)
	if got != 10*time.Second {
		t.Errorf("delay = %v, want clamped to 10s", got)
	}
}

func TestCalculateDelayExponentialBackoff(t *testing.T) {
	c := New(discardLogger())
	c.BaseDelay = time.Second
	c.MaxDelay = 60 * time.Second

	resp := &http.Response{Header: http.Header{}}
	for attempt, want := range map[int]time.Duration{0: time.Second, 1: 2 * time.Second, 2: 4 * time.Second} {
		if got := c.calculateDelay(resp, attempt); got != want {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, want)
		}
	}
}

func TestDoRetriesTransportErrorThenFails(t *testing.T) {
	c := New(discardLogger())
	c.BaseDelay = time.Millisecond
	c.MaxDelay = time.Millisecond
	c.MaxRetries = 2

	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/unreachable", nil)
	_, err := c.Do(req)
	if err == nil {
		t.Fatal("expected transport error after retries exhausted")
	}
}
