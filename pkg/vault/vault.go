// Package vault encrypts, persists, loads, and refreshes per-tenant OAuth
// credentials for the commerce-A and commerce-B platforms.
package vault

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jedmorris/syncforge/internal/syncerr"
	"github.com/jedmorris/syncforge/pkg/connaccount"
)

// Tokens is the plaintext credential bundle returned by Load/EnsureValid.
// ExpiresAt is nil for non-expiring tokens (commerce-B's common case).
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	ShopDomain   string
}

const (
	PlatformCommerceA   = "commerce-A"
	PlatformCommerceB   = "commerce-B"
	PlatformFulfillmentF = "fulfillment-F"
)

// Vault is the Token Vault. One instance is shared by every job in a
// process; refreshes are serialized per (tenant, platform) via singleflight.
type Vault struct {
	cipher    *cipher
	key       [32]byte
	accounts  *connaccount.Store
	http      *http.Client
	commerceAAPIKey     string
	commerceBAPIKey     string
	commerceBAPISecret  string
	sf        singleflight.Group
}

// New constructs a Vault. rawKey accepts either hex or standard-base64
// encoding of a 32-byte key, matching the environment contract in SPEC_FULL.md §6.
func New(rawKey string, accounts *connaccount.Store, commerceAAPIKey, commerceBAPIKey, commerceBAPISecret string) (*Vault, error) {
	key, err := decodeKey(rawKey)
	if err != nil {
		return nil, err
	}
	return &Vault{
		cipher:             newCipher(key),
		key:                key,
		accounts:           accounts,
		http:               &http.Client{Timeout: 30 * time.Second},
		commerceAAPIKey:    commerceAAPIKey,
		commerceBAPIKey:    commerceBAPIKey,
		commerceBAPISecret: commerceBAPISecret,
	}, nil
}

func decodeKey(raw string) ([32]byte, error) {
	var key [32]byte
	if decoded, err := hex.DecodeString(raw); err == nil && len(decoded) == 32 {
		copy(key[:], decoded)
		return key, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == 32 {
		copy(key[:], decoded)
		return key, nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(padBase64(raw)); err == nil && len(decoded) == 32 {
		copy(key[:], decoded)
		return key, nil
	}
	return key, fmt.Errorf("TOKEN_ENCRYPTION_KEY must decode to 32 bytes (hex or base64)")
}

// Store encrypts access/refresh independently and upserts the
// ConnectedAccount. Sets updated_at to now via the Store layer.
func (v *Vault) Store(ctx context.Context, tenantID uuid.UUID, platform, access string, refresh *string, expiresAt *time.Time, shopDomain *string) error {
	accessEnc, err := v.cipher.encrypt(access)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}

	var refreshEnc *string
	if refresh != nil {
		enc, err := v.cipher.encrypt(*refresh)
		if err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
		refreshEnc = &enc
	}

	return v.accounts.UpsertTokens(ctx, connaccount.UpsertTokensParams{
		TenantID:        tenantID,
		Platform:        platform,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		TokenExpiresAt:  expiresAt,
		ShopDomain:      shopDomain,
	})
}

// Load returns plaintext tokens, or nil if no account exists.
func (v *Vault) Load(ctx context.Context, tenantID uuid.UUID, platform string) (*Tokens, error) {
	acct, err := v.accounts.Get(ctx, tenantID, platform)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading connected account: %w", err)
	}

	access, err := v.decrypt(acct.AccessTokenEnc)
	if err != nil {
		return nil, err
	}

	tokens := &Tokens{AccessToken: access, ExpiresAt: acct.TokenExpiresAt}
	if acct.ShopDomain != nil {
		tokens.ShopDomain = *acct.ShopDomain
	}
	if acct.RefreshTokenEnc != nil {
		refresh, err := v.decrypt(*acct.RefreshTokenEnc)
		if err != nil {
			return nil, err
		}
		tokens.RefreshToken = refresh
	}
	return tokens, nil
}

func (v *Vault) decrypt(encoded string) (string, error) {
	if isLegacy(encoded) {
		return legacyDecrypt(v.key, encoded)
	}
	return v.cipher.decrypt(encoded)
}

// IsExpired is true when expiresAt is nil or now >= expiresAt (UTC).
func IsExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return !time.Now().UTC().Before(expiresAt.UTC())
}

// EnsureValid returns non-expired plaintext tokens, refreshing if needed.
// Concurrent callers for the same (tenant, platform) collapse onto a single
// in-flight refresh via singleflight.
func (v *Vault) EnsureValid(ctx context.Context, tenantID uuid.UUID, platform string) (*Tokens, error) {
	tokens, err := v.Load(ctx, tenantID, platform)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, &syncerr.NoCredentials{Tenant: tenantID.String(), Platform: platform}
	}

	if platform == PlatformCommerceB && !needsCommerceBRefresh(tokens) {
		return tokens, nil
	}
	// fulfillment-F issues long-lived personal access tokens with no
	// expiry; a nil ExpiresAt there means permanently valid, not expired.
	if platform == PlatformFulfillmentF && tokens.ExpiresAt == nil {
		return tokens, nil
	}
	if platform != PlatformCommerceB && !IsExpired(tokens.ExpiresAt) {
		return tokens, nil
	}

	key := tenantID.String() + ":" + platform
	v2, err, _ := v.sf.Do(key, func() (any, error) {
		return v.refresh(ctx, tenantID, platform)
	})
	if err != nil {
		return nil, err
	}
	return v2.(*Tokens), nil
}

func needsCommerceBRefresh(t *Tokens) bool {
	return t.RefreshToken != "" && t.ExpiresAt != nil && IsExpired(t.ExpiresAt)
}

func (v *Vault) refresh(ctx context.Context, tenantID uuid.UUID, platform string) (*Tokens, error) {
	switch platform {
	case PlatformCommerceA:
		return v.refreshCommerceA(ctx, tenantID)
	case PlatformCommerceB:
		return v.refreshCommerceB(ctx, tenantID)
	default:
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: platform, Reason: "no refresh flow implemented"}
	}
}

// commerceAEndpoint is the standard RFC 6749 refresh_token grant Etsy
// exposes; oauth2.Config handles the form encoding and status/JSON error
// cases that commerceB's endpoint (JSON body, per-shop domain) does not fit.
var commerceAEndpoint = oauth2.Endpoint{
	TokenURL:  "https://api.etsy.com/v3/public/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// refreshCommerceA implements the commerce-A refresh contract from
// SPEC_FULL.md §4.1: grant_type=refresh_token, rotating refresh token,
// expires_in seconds.
func (v *Vault) refreshCommerceA(ctx context.Context, tenantID uuid.UUID) (*Tokens, error) {
	tokens, err := v.Load(ctx, tenantID, PlatformCommerceA)
	if err != nil {
		return nil, err
	}
	if tokens == nil || tokens.RefreshToken == "" {
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: PlatformCommerceA, Reason: "no refresh token on file"}
	}

	cfg := &oauth2.Config{ClientID: v.commerceAAPIKey, Endpoint: commerceAEndpoint}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.http)
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tokens.RefreshToken})

	fresh, err := src.Token()
	if err != nil {
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: PlatformCommerceA, Reason: err.Error()}
	}

	refreshToken := fresh.RefreshToken
	if refreshToken == "" {
		refreshToken = tokens.RefreshToken
	}
	if err := v.Store(ctx, tenantID, PlatformCommerceA, fresh.AccessToken, &refreshToken, &fresh.Expiry, nil); err != nil {
		return nil, fmt.Errorf("storing refreshed commerce-A tokens: %w", err)
	}

	return &Tokens{AccessToken: fresh.AccessToken, RefreshToken: refreshToken, ExpiresAt: &fresh.Expiry}, nil
}

// refreshCommerceB implements the commerce-B refresh contract: tokens are
// normally non-expiring; only refresh when both an expiry AND a refresh
// token are on file, preserving the original refresh token if the response
// omits one.
func (v *Vault) refreshCommerceB(ctx context.Context, tenantID uuid.UUID) (*Tokens, error) {
	tokens, err := v.Load(ctx, tenantID, PlatformCommerceB)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: PlatformCommerceB, Reason: "no connected account"}
	}
	if !needsCommerceBRefresh(tokens) {
		return tokens, nil
	}
	if tokens.ShopDomain == "" {
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: PlatformCommerceB, Reason: "no shop_domain on file"}
	}

	payload, _ := json.Marshal(map[string]string{
		"client_id":     v.commerceBAPIKey,
		"client_secret": v.commerceBAPISecret,
		"grant_type":    "refresh_token",
		"refresh_token": tokens.RefreshToken,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/admin/oauth/access_token", tokens.ShopDomain), strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: PlatformCommerceB, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: PlatformCommerceB, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var body struct {
		AccessToken string  `json:"access_token"`
		ExpiresAt   *string `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &syncerr.RefreshFailed{Tenant: tenantID.String(), Platform: PlatformCommerceB, Reason: "invalid JSON response"}
	}

	var expiresAt *time.Time
	if body.ExpiresAt != nil {
		if t, err := time.Parse(time.RFC3339, *body.ExpiresAt); err == nil {
			expiresAt = &t
		}
	}

	refreshToken := tokens.RefreshToken
	shop := tokens.ShopDomain
	if err := v.Store(ctx, tenantID, PlatformCommerceB, body.AccessToken, &refreshToken, expiresAt, &shop); err != nil {
		return nil, fmt.Errorf("storing refreshed commerce-B tokens: %w", err)
	}

	return &Tokens{AccessToken: body.AccessToken, RefreshToken: refreshToken, ExpiresAt: expiresAt, ShopDomain: shop}, nil
}
