// Package etsy implements the commerce-A platform adapter: orders,
// listings, and the payment ledger, against Etsy's API v3.
package etsy

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

const baseURL = "https://api.etsy.com/v3/application"

// Client is a stateless commerce-A client keyed by tenant id, wrapping one
// transport session for exactly one job.
type Client struct {
	session *adapter.Session
	shopID  string
	apiKey  string
}

// New constructs a Client, loading tokens via the vault and the shop id
// from the connected account row.
func New(ctx context.Context, v *vault.Vault, b *budgeter.Budgeter, hc *httpclient.Client, accounts *connaccount.Store, apiKey string, tenantID uuid.UUID) (*Client, error) {
	sess, err := adapter.NewSession(ctx, v, b, hc, tenantID, vault.PlatformCommerceA)
	if err != nil {
		return nil, err
	}
	acct, err := accounts.Get(ctx, tenantID, vault.PlatformCommerceA)
	if err != nil {
		return nil, fmt.Errorf("loading commerce-A connected account: %w", err)
	}
	var shopID string
	if acct.ShopDomain != nil {
		shopID = *acct.ShopDomain
	}
	return &Client{session: sess, shopID: shopID, apiKey: apiKey}, nil
}

func (c *Client) authHeaders(tokens *vault.Tokens) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + tokens.AccessToken,
		"x-api-key":     c.apiKey,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.session.Call(ctx, "GET", u, nil, c.authHeaders, nil)
}

// receiptsPage is one page of the shop receipts listing.
type receiptsPage struct {
	Results []Receipt `json:"results"`
}

// Receipt is one Etsy order (receipt).
type Receipt struct {
	ReceiptID        int64                `json:"receipt_id"`
	Status           string               `json:"status"`
	WasPaid          bool                 `json:"was_paid"`
	WasShipped       bool                 `json:"was_shipped"`
	Subtotal         adapter.EtsyMoney    `json:"subtotal"`
	TotalShippingCost adapter.EtsyMoney   `json:"total_shipping_cost"`
	TotalTaxCost     adapter.EtsyMoney    `json:"total_tax_cost"`
	DiscountAmt      adapter.EtsyMoney    `json:"discount_amt"`
	Grandtotal       adapter.EtsyMoney    `json:"grandtotal"`
	CreateTimestamp  int64                `json:"create_timestamp"`
	Transactions     []Transaction        `json:"transactions"`
}

// Transaction is one Etsy receipt line item.
type Transaction struct {
	TransactionID int64             `json:"transaction_id"`
	Title         string            `json:"title"`
	Quantity      int               `json:"quantity"`
	SKU           string            `json:"sku"`
	Price         adapter.EtsyMoney `json:"price"`
}

// GetAllReceipts pages through every receipt since minCreated (a unix
// timestamp), following the offset+limit pagination contract.
func (c *Client) GetAllReceipts(ctx context.Context, minCreated int64) ([]Receipt, error) {
	const limit = 100
	var all []Receipt
	offset := 0

	for {
		query := url.Values{"limit": {fmt.Sprint(limit)}, "offset": {fmt.Sprint(offset)}}
		if minCreated > 0 {
			query.Set("min_created", fmt.Sprint(minCreated))
		}
		data, err := c.get(ctx, fmt.Sprintf("/shops/%s/receipts", c.shopID), query)
		if err != nil {
			return nil, err
		}
		var page receiptsPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding receipts page: %w", err)
		}
		all = append(all, page.Results...)
		if len(page.Results) < limit {
			break
		}
		offset += limit
	}
	return all, nil
}

// listingsPage is one page of the shop listings.
type listingsPage struct {
	Results []Listing `json:"results"`
}

// Listing is one Etsy product listing.
type Listing struct {
	ListingID int64             `json:"listing_id"`
	Title     string            `json:"title"`
	State     string            `json:"state"`
	Price     adapter.EtsyMoney `json:"price"`
}

// GetAllActiveListings pages through every active listing.
func (c *Client) GetAllActiveListings(ctx context.Context) ([]Listing, error) {
	const limit = 100
	var all []Listing
	offset := 0

	for {
		query := url.Values{"state": {"active"}, "limit": {fmt.Sprint(limit)}, "offset": {fmt.Sprint(offset)}}
		data, err := c.get(ctx, fmt.Sprintf("/shops/%s/listings", c.shopID), query)
		if err != nil {
			return nil, err
		}
		var page listingsPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding listings page: %w", err)
		}
		all = append(all, page.Results...)
		if len(page.Results) < limit {
			break
		}
		offset += limit
	}
	return all, nil
}

// ledgerPage is one page of the shop payment ledger.
type ledgerPage struct {
	Results []LedgerEntry `json:"results"`
}

// LedgerEntry is one Etsy payment-account ledger entry.
type LedgerEntry struct {
	EntryID         int64  `json:"entry_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Type            string `json:"type"`
	ReceiptID       *int64 `json:"receipt_id"`
	CreateTimestamp int64  `json:"create_date"`
}

// GetAllLedgerEntries pages through every payment ledger entry since
// minCreated.
func (c *Client) GetAllLedgerEntries(ctx context.Context, minCreated int64) ([]LedgerEntry, error) {
	const limit = 100
	var all []LedgerEntry
	offset := 0

	for {
		query := url.Values{"limit": {fmt.Sprint(limit)}, "offset": {fmt.Sprint(offset)}}
		if minCreated > 0 {
			query.Set("min_created", fmt.Sprint(minCreated))
		}
		data, err := c.get(ctx, fmt.Sprintf("/shops/%s/payment-account/ledger-entries", c.shopID), query)
		if err != nil {
			return nil, err
		}
		var page ledgerPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decoding ledger page: %w", err)
		}
		all = append(all, page.Results...)
		if len(page.Results) < limit {
			break
		}
		offset += limit
	}
	return all, nil
}
