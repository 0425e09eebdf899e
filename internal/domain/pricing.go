package domain

import "math"

// PricingBreakdown captures the server-computed monetary results for an order.
// Client-submitted prices are never trusted; the engine recomputes every field
// from the catalog before persisting.
type PricingBreakdown struct {
	Currency      string
	ItemsPrice    float64
	TaxPrice      float64
	ShippingPrice float64
	Discount      float64
	Coupon        *AppliedCoupon
	Total         float64
	Items         []ItemPricingBreakdown
}

// ItemPricingBreakdown stores the per-line pricing outputs.
type ItemPricingBreakdown struct {
	ProductRef string
	UnitPrice  float64
	Quantity   int
	Subtotal   float64
}

// RoundAmount converts a stored price into the integer amount charged by the
// payment provider. XOF has no minor unit, so totals round to the nearest
// whole franc.
func RoundAmount(v float64) int64 {
	return int64(math.Round(v))
}
