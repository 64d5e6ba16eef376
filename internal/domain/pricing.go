package domain

import "math"

// DefaultTaxRate applies when configuration does not override it.
const DefaultTaxRate = 0.05

// AmountToleranceMinorUnits is the maximum accepted gap between a
// client-declared charge amount and the server-side recomputation, in minor
// currency units. Absorbs client-side float rounding, nothing more.
const AmountToleranceMinorUnits = 1

// PricingBreakdown captures the server-side recomputation of an order's
// monetary totals. Subtotal, tax, and total are in major currency units;
// AmountMinor is the charge amount in minor units.
type PricingBreakdown struct {
	Subtotal    float64
	Tax         float64
	Total       float64
	AmountMinor int64
}

// PriceItems recomputes totals from price-snapshotted line items. Line
// subtotals are unit price times quantity; tax applies to the item subtotal
// sum; amounts round half away from zero to minor units.
func PriceItems(items []OrderItem, taxRate float64) PricingBreakdown {
	var subtotal float64
	for _, item := range items {
		subtotal += item.Variation.Price * float64(item.Quantity)
	}
	subtotal = roundMajor(subtotal)
	tax := roundMajor(subtotal * taxRate)
	total := roundMajor(subtotal + tax)
	return PricingBreakdown{
		Subtotal:    subtotal,
		Tax:         tax,
		Total:       total,
		AmountMinor: MajorToMinor(total),
	}
}

// MatchesAmount reports whether a client-declared minor-unit amount agrees
// with the recomputed total within tolerance.
func (b PricingBreakdown) MatchesAmount(declaredMinor int64) bool {
	diff := declaredMinor - b.AmountMinor
	if diff < 0 {
		diff = -diff
	}
	return diff <= AmountToleranceMinorUnits
}

// MajorToMinor converts a major-unit amount to minor units.
func MajorToMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// MinorToMajor converts a minor-unit amount to major units.
func MinorToMajor(amount int64) float64 {
	return float64(amount) / 100
}

func roundMajor(amount float64) float64 {
	return math.Round(amount*100) / 100
}
