package service

import "math"

// The two checkout channels carry deliberately different discount
// semantics and stay separate code paths: the self-service discount is a
// flat amount derived from a quantity tier, the staff-assisted discount is
// a cashier-entered percentage of the total.

// Quantity tiers for the self-service channel.
const (
	tierSmallMaxQty  = 2  // 0-2 items: no discount
	tierMediumMaxQty = 5  // 3-5 items: 5%
	tierMediumPct    = 5
	tierLargePct     = 10 // 6+ items
)

// TieredCartDiscountPercent returns the discount percentage for a
// self-service cart with the given total item quantity.
func TieredCartDiscountPercent(totalQty int) float64 {
	switch {
	case totalQty <= tierSmallMaxQty:
		return 0
	case totalQty <= tierMediumMaxQty:
		return tierMediumPct
	default:
		return tierLargePct
	}
}

// TieredCartDiscount converts the tier percentage into the flat amount
// subtracted from a self-service sale's total.
func TieredCartDiscount(totalQty int, subtotalCents int64) int64 {
	pct := TieredCartDiscountPercent(totalQty)
	if pct == 0 || subtotalCents < 1 {
		return 0
	}
	return roundCents(float64(subtotalCents) * pct / 100)
}

// StaffPercentDiscount computes the cashier-entered percentage discount on
// a staff-assisted sale. Out-of-range percentages are the caller's error
// and are validated before this is reached.
func StaffPercentDiscount(percent float64, subtotalCents int64) int64 {
	if percent <= 0 || subtotalCents < 1 {
		return 0
	}
	discount := roundCents(float64(subtotalCents) * percent / 100)
	if discount > subtotalCents {
		return subtotalCents
	}
	return discount
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
