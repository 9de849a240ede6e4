package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/internal/syncerr"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/httpclient"
	"github.com/jedmorris/syncforge/pkg/vault"
)

// Session implements the common per-call contract every adapter follows:
// admission check, issue, record, one-shot 401 re-validate-and-retry, then
// parse-or-raise. One Session wraps one transport session for exactly one
// (tenant, platform) job.
type Session struct {
	TenantID uuid.UUID
	Platform string
	Tokens   *vault.Tokens

	vault  *vault.Vault
	budget *budgeter.Budgeter
	http   *httpclient.Client
}

// NewSession loads tokens via the vault and returns a ready-to-use Session.
func NewSession(ctx context.Context, v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, tenantID uuid.UUID, platform string) (*Session, error) {
	tokens, err := v.EnsureValid(ctx, tenantID, platform)
	if err != nil {
		return nil, err
	}
	return &Session{
		TenantID: tenantID,
		Platform: platform,
		Tokens:   tokens,
		vault:    v,
		budget:   b,
		http:     hc,
	}, nil
}

// AuthHeaderFunc builds the per-request auth headers from the session's
// current tokens, since refresh replaces them mid-call.
type AuthHeaderFunc func(tokens *vault.Tokens) map[string]string

// Call issues one authenticated request and returns the raw 2xx body.
// On 401 it calls the vault's EnsureValid once and reissues the same request
// once; it never loops further. EnsureValid refreshes only when the stored
// expiry has passed, so a 401 on a token the vault still holds as unexpired
// is reissued with the same token.
func (s *Session) Call(ctx context.Context, method, url string, body []byte, authHeaders AuthHeaderFunc, extraHeaders map[string]string) ([]byte, error) {
	if !s.budget.CanRequest(s.TenantID.String(), s.Platform) {
		return nil, &syncerr.RateLimited{Tenant: s.TenantID.String(), Platform: s.Platform}
	}

	resp, err := s.issue(ctx, method, url, body, authHeaders, extraHeaders)
	if err != nil {
		return nil, err
	}
	s.budget.Record(s.TenantID.String(), s.Platform, 1)

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		refreshed, err := s.vault.EnsureValid(ctx, s.TenantID, s.Platform)
		if err != nil {
			return nil, err
		}
		s.Tokens = refreshed

		resp, err = s.issue(ctx, method, url, body, authHeaders, extraHeaders)
		if err != nil {
			return nil, err
		}
		s.budget.Record(s.TenantID.String(), s.Platform, 1)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &syncerr.UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (s *Session) issue(ctx context.Context, method, url string, body []byte, authHeaders AuthHeaderFunc, extraHeaders map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range authHeaders(s.Tokens) {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	return s.http.Do(req)
}
