package printify

import "testing"

func TestMapStatus(t *testing.T) {
	cases := map[string]string{
		"pending":               "unfulfilled",
		"sending-to-production": "in_production",
		"in-production":         "in_production",
		"shipping":              "shipped",
		"on-hold":               "unfulfilled",
		"fulfilled":             "delivered",
		"canceled":              "cancelled",
		"xyz":                   "unfulfilled",
	}
	for in, want := range cases {
		if got := MapStatus(in); got != want {
			t.Errorf("MapStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestS3PrintifyStatusMapping pins the literal example values down exactly.
func TestS3PrintifyStatusMapping(t *testing.T) {
	if got := MapStatus("pending"); got != "unfulfilled" {
		t.Errorf("pending -> %q, want unfulfilled", got)
	}
	if got := MapStatus("in-production"); got != "in_production" {
		t.Errorf("in-production -> %q, want in_production", got)
	}
	if got := MapStatus("shipping"); got != "shipped" {
		t.Errorf("shipping -> %q, want shipped", got)
	}
	if got := MapStatus("fulfilled"); got != "delivered" {
		t.Errorf("fulfilled -> %q, want delivered", got)
	}
	if got := MapStatus("xyz"); got != "unfulfilled" {
		t.Errorf("xyz -> %q, want unfulfilled", got)
	}
}
