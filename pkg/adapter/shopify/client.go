// Package shopify implements the commerce-B platform adapter: orders,
// products, and customers, against Shopify's GraphQL Admin API.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/internal/syncerr"
	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/httpclient"
	"github.com/jedmorris/syncforge/pkg/vault"
)

const graphqlAPIVersion = "2024-10"

// Client is a stateless commerce-B client keyed by tenant id.
type Client struct {
	session    *adapter.Session
	shopDomain string
}

// New constructs a Client, loading tokens and shop domain via the vault.
func New(ctx context.Context, v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, tenantID uuid.UUID) (*Client, error) {
	sess, err := adapter.NewSession(ctx, v, b, hc, tenantID, vault.PlatformCommerceB)
	if err != nil {
		return nil, err
	}
	return &Client{session: sess, shopDomain: sess.Tokens.ShopDomain}, nil
}

func (c *Client) authHeaders(tokens *vault.Tokens) map[string]string {
	return map[string]string{
		"X-Shopify-Access-Token": tokens.AccessToken,
		"Content-Type":           "application/json",
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// Graphql executes one GraphQL query against the shop-scoped Admin API.
func (c *Client) Graphql(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encoding graphql request: %w", err)
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.shopDomain, graphqlAPIVersion)
	data, err := c.session.Call(ctx, "POST", url, payload, c.authHeaders, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return nil, &syncerr.UpstreamError{Status: 200, Body: envelope.Errors[0].Message}
	}
	return envelope.Data, nil
}

// Money is the {amount, currencyCode} shape Shopify uses for MoneyV2.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// MoneyBag wraps a Money value under shopMoney, as Shopify's *Set fields do.
type MoneyBag struct {
	ShopMoney Money `json:"shopMoney"`
}
