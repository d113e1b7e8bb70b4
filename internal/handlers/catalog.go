package handlers

import "fmt"

// DefaultPriceCents is charged for any service without a catalog entry.
const DefaultPriceCents int64 = 5

// SponsoredApiCreateService is the internal service charged when creating a
// sponsored API costs money.
const SponsoredApiCreateService = "sponsored-api-create"

const sponsoredApiServicePrefix = "sponsored-api"

// servicePrices is the static price catalog in cents.
var servicePrices = map[string]int64{
	"scraping":     5,
	"design":       8,
	"storage":      3,
	"data-tooling": 4,
}

// servicePrice returns the price in cents for a service name. Unknown
// services fall back to the default price rather than being rejected.
func servicePrice(service string) int64 {
	if price, ok := servicePrices[service]; ok {
		return price
	}
	return DefaultPriceCents
}

// sponsoredApiServiceKey derives the per-API service identity used in
// payment proofs and requirements for a sponsored API.
func sponsoredApiServiceKey(apiID string) string {
	return fmt.Sprintf("%s-%s", sponsoredApiServicePrefix, apiID)
}
