package printify

// fulfillmentStatus maps a Printify order status to the normalized
// fulfillment_status vocabulary shared across platforms.
var fulfillmentStatus = map[string]string{
	"pending":                "unfulfilled",
	"sending-to-production":  "in_production",
	"in-production":          "in_production",
	"shipping":                "shipped",
	"on-hold":                "unfulfilled",
	"fulfilled":              "delivered",
	"canceled":               "cancelled",
}

// MapStatus normalizes a raw Printify order status, defaulting to
// "unfulfilled" for anything unrecognized.
func MapStatus(status string) string {
	if mapped, ok := fulfillmentStatus[status]; ok {
		return mapped
	}
	return "unfulfilled"
}
