package newsletter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jedmorris/syncforge/pkg/httpclient"
)

// substackMinInterval is the conservative floor between forwards to
// Substack's unofficial subscribe endpoint, matching the source system's
// time.sleep-based throttle.
const substackMinInterval = time.Second

// Downstream forwards subscribers to the downstream-newsletter publication
// (Substack-shaped, no official API: it posts to the same endpoint the
// publication's own signup form uses).
type Downstream struct {
	http           *httpclient.Client
	publicationURL string

	mu       sync.Mutex
	lastSent time.Time
}

// NewDownstream constructs a Downstream client capped at two retries, per
// the source system's subscribe(..., max_retries=2).
func NewDownstream(hc *httpclient.Client, publicationURL string) *Downstream {
	limited := *hc
	limited.MaxRetries = 2
	return &Downstream{http: &limited, publicationURL: strings.TrimRight(publicationURL, "/")}
}

// ForwardResult is the outcome of one subscribe attempt.
type ForwardResult struct {
	Success    bool
	StatusCode int
	Detail     string
}

// Subscribe posts email to the downstream publication's free-subscribe
// endpoint, throttled to at most one request per second across all callers.
func (d *Downstream) Subscribe(ctx context.Context, email string) ForwardResult {
	if d.publicationURL == "" {
		return ForwardResult{Detail: "downstream publication url not configured"}
	}

	d.throttle(ctx)

	body := fmt.Sprintf(`{"email":%q,"first_url":%q}`, email, d.publicationURL)
	req, err := http.NewRequestWithContext(ctx, "POST", d.publicationURL+"/api/v1/free", strings.NewReader(body))
	if err != nil {
		return ForwardResult{Detail: fmt.Sprintf("building request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "syncforge-newsletter-sync/1.0")

	resp, err := d.http.Do(req)
	if err != nil {
		return ForwardResult{Detail: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch resp.StatusCode {
	case http.StatusOK:
		return ForwardResult{Success: true, StatusCode: 200, Detail: "confirmation email sent"}
	case http.StatusTooManyRequests:
		return ForwardResult{StatusCode: 429, Detail: "rate limited, will retry"}
	default:
		return ForwardResult{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("unexpected status: %s", string(data))}
	}
}

func (d *Downstream) throttle(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.lastSent)
	if elapsed < substackMinInterval {
		timer := time.NewTimer(substackMinInterval - elapsed)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	d.lastSent = time.Now()
}

// StatusForResult maps a forward result to the stored substack_status value.
func StatusForResult(r ForwardResult) string {
	switch {
	case r.Success:
		return "confirmation_sent"
	case r.StatusCode == http.StatusTooManyRequests:
		return "pending"
	default:
		return "failed"
	}
}
