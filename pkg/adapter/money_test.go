package adapter

import "testing"

func TestToCentsDivisor100(t *testing.T) {
	if got := ToCents(EtsyMoney{Amount: 2500, Divisor: 100}); got != 2500 {
		t.Errorf("ToCents = %d, want 2500", got)
	}
	if got := ToCents(EtsyMoney{Amount: 3200, Divisor: 100}); got != 3200 {
		t.Errorf("ToCents = %d, want 3200", got)
	}
}

func TestToCentsDivisor1(t *testing.T) {
	if got := ToCents(EtsyMoney{Amount: 25, Divisor: 1}); got != 2500 {
		t.Errorf("ToCents = %d, want 2500", got)
	}
}

func TestToCentsEmpty(t *testing.T) {
	if got := ToCents(EtsyMoney{}); got != 0 {
		t.Errorf("ToCents = %d, want 0", got)
	}
}

func TestShopifyMoneyToCents(t *testing.T) {
	if got := ShopifyMoneyToCents("25.50"); got != 2550 {
		t.Errorf("ShopifyMoneyToCents = %d, want 2550", got)
	}
	if got := ShopifyMoneyToCents(""); got != 0 {
		t.Errorf("ShopifyMoneyToCents empty = %d, want 0", got)
	}
}

func TestGIDTail(t *testing.T) {
	if got := GIDTail("gid://shopify/Order/123456"); got != "123456" {
		t.Errorf("GIDTail = %q, want 123456", got)
	}
	if got := GIDTail("123456"); got != "123456" {
		t.Errorf("GIDTail passthrough = %q, want 123456", got)
	}
}

func TestS1EtsyMoneyNormalization(t *testing.T) {
	subtotal := EtsyMoney{Amount: 2500, Divisor: 100}
	grandtotal := EtsyMoney{Amount: 3200, Divisor: 100}
	price := EtsyMoney{Amount: 1250, Divisor: 100}
	quantity := int64(2)

	if got := ToCents(subtotal); got != 2500 {
		t.Errorf("subtotal_cents = %d, want 2500", got)
	}
	if got := ToCents(grandtotal); got != 3200 {
		t.Errorf("total_cents = %d, want 3200", got)
	}
	if got := ToCents(price); got != 1250 {
		t.Errorf("unit_price_cents = %d, want 1250", got)
	}
	if got := ToCents(price) * quantity; got != 2500 {
		t.Errorf("line item total_cents = %d, want 2500", got)
	}
}

func TestS2ShopifyGIDParse(t *testing.T) {
	if got := GIDTail("gid://shopify/Order/123456"); got != "123456" {
		t.Errorf("platform_order_id = %q, want 123456", got)
	}
	if got := ShopifyMoneyToCents("25.50"); got != 2550 {
		t.Errorf("total_cents = %d, want 2550", got)
	}
}
