// Package printify implements the fulfillment-F platform adapter: orders and
// products, against Printify API v1. Credentials are long-lived personal
// access tokens rather than OAuth, so the client never refreshes them.
package printify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/jedmorris/syncforge/pkg/adapter"
	"github.com/jedmorris/syncforge/pkg/budgeter"
	"github.com/jedmorris/syncforge/pkg/connaccount"
	"github.com/jedmorris/syncforge/pkg/httpclient"
	"github.com/jedmorris/syncforge/pkg/vault"
)

const baseURL = "https://api.printify.com/v1"

// Client is a stateless fulfillment-F client keyed by tenant id.
type Client struct {
	session *adapter.Session
	shopID  string
}

// New constructs a Client, loading the personal access token via the vault
// and the shop id from the connected account row.
func New(ctx context.Context, v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, tenantID uuid.UUID) (*Client, error) {
	sess, err := adapter.NewSession(ctx, v, b, hc, tenantID, vault.PlatformFulfillmentF)
	if err != nil {
		return nil, err
	}
	acct, err := accounts.Get(ctx, tenantID, vault.PlatformFulfillmentF)
	if err != nil {
		return nil, fmt.Errorf("loading fulfillment-F connected account: %w", err)
	}
	var shopID string
	if acct.ShopDomain != nil {
		shopID = *acct.ShopDomain
	}
	return &Client{session: sess, shopID: shopID}, nil
}

func (c *Client) authHeaders(tokens *vault.Tokens) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tokens.AccessToken}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.session.Call(ctx, "GET", u, nil, c.authHeaders, nil)
}

// LineItem is one item in a Printify order.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Cost      int64  `json:"cost"`
	Shipping  int64  `json:"shipping"`
}

// External is the linkage Printify carries back to the originating
// commerce platform order, when the order was pushed there from a
// connected storefront.
type External struct {
	ID string `json:"id"`
}

// Order is one Printify order.
type Order struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	TotalPrice     int64      `json:"total_price"`
	TotalShipping  int64      `json:"total_shipping"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
	External       External   `json:"external"`
	LineItems      []LineItem `json:"line_items"`
}

type ordersPage struct {
	Data     []Order `json:"data"`
	LastPage int     `json:"last_page"`
}

// GetAllOrders pages through every order for the shop.
func (c *Client) GetAllOrders(ctx context.Context) ([]Order, error) {
	const limit = 100
	var all []Order
	page := 1

	for {
		query := url.Values{"page": {fmt.Sprint(page)}, "limit": {fmt.Sprint(limit)}}
		data, err := c.get(ctx, fmt.Sprintf("/shops/%s/orders.json", c.shopID), query)
		if err != nil {
			return nil, err
		}
		var pg ordersPage
		if err := json.Unmarshal(data, &pg); err != nil {
			return nil, fmt.Errorf("decoding orders page: %w", err)
		}
		all = append(all, pg.Data...)
		if pg.LastPage == 0 || page >= pg.LastPage {
			break
		}
		page++
	}
	return all, nil
}

// Variant is one product variant, carrying its own production cost.
type Variant struct {
	ID   int64 `json:"id"`
	Cost int64 `json:"cost"`
}

// Image is one product image asset.
type Image struct {
	Src string `json:"src"`
}

// Product is one Printify catalog product.
type Product struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Visible         bool      `json:"visible"`
	BlueprintID     int64     `json:"blueprint_id"`
	PrintProviderID int64     `json:"print_provider_id"`
	CreatedAt       string    `json:"created_at"`
	UpdatedAt       string    `json:"updated_at"`
	Images          []Image   `json:"images"`
	Tags            []string  `json:"tags"`
	Variants        []Variant `json:"variants"`
}

type productsPage struct {
	Data     []Product `json:"data"`
	LastPage int       `json:"last_page"`
}

// GetAllProducts pages through every product in the shop's catalog.
func (c *Client) GetAllProducts(ctx context.Context) ([]Product, error) {
	const limit = 100
	var all []Product
	page := 1

	for {
		query := url.Values{"page": {fmt.Sprint(page)}, "limit": {fmt.Sprint(limit)}}
		data, err := c.get(ctx, fmt.Sprintf("/shops/%s/products.json", c.shopID), query)
		if err != nil {
			return nil, err
		}
		var pg productsPage
		if err := json.Unmarshal(data, &pg); err != nil {
			return nil, fmt.Errorf("decoding products page: %w", err)
		}
		all = append(all, pg.Data...)
		if pg.LastPage == 0 || page >= pg.LastPage {
			break
		}
		page++
	}
	return all, nil
}
