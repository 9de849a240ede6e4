package adapter

import (
	"math"
	"strconv"
	"strings"
)

// EtsyMoney is the {amount, divisor} shape Etsy's API uses for every
// monetary field.
type EtsyMoney struct {
	Amount   int64 `json:"amount"`
	Divisor  int64 `json:"divisor"`
	Currency string `json:"currency_code"`
}

// ToCents converts an Etsy money object to integer cents. When divisor is 1
// the amount is already a whole-currency-unit integer and must be scaled by
// 100; otherwise it is already sub-divided by divisor.
func ToCents(m EtsyMoney) int64 {
	if m.Divisor == 0 {
		return 0
	}
	if m.Divisor == 1 {
		return m.Amount * 100
	}
	return m.Amount * 100 / m.Divisor
}

// ShopifyMoneyToCents converts a Shopify "amount" decimal string (e.g.
// "25.50") to integer cents.
func ShopifyMoneyToCents(amount string) int64 {
	if amount == "" {
		return 0
	}
	f, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// GIDTail extracts the trailing numeric segment of a Shopify GID, e.g.
// "123456" from "gid://shopify/Order/123456".
func GIDTail(gid string) string {
	idx := strings.LastIndex(gid, "/")
	if idx < 0 {
		return gid
	}
	return gid[idx+1:]
}
