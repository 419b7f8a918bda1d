package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Line describes a cart line used for pricing calculation.
type Line struct {
	Qty         int
	UnitPrice   Money
	DiscountBps int32
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discountAmount"`
	Tax      Money `json:"tax"`
	Total    Money `json:"totalAmount"`
}

// Price calculates cart totals from the provided lines and tax rate.
// Discounts are applied per line so carts with mixed discount rates are
// supported. Total = Subtotal - Discount + Tax always holds.
func Price(lines []Line, taxBps int) Summary {
	var subtotal, discount Money
	for _, ln := range lines {
		if ln.Qty <= 0 || ln.UnitPrice < 0 {
			continue
		}
		lineSubtotal := Money(ln.Qty) * ln.UnitPrice
		subtotal += lineSubtotal
		bps := ln.DiscountBps
		if bps < 0 {
			bps = 0
		}
		if bps > 10000 {
			bps = 10000
		}
		discount += applyBps(lineSubtotal, Money(bps))
	}
	if discount > subtotal {
		discount = subtotal
	}
	taxable := subtotal - discount
	if taxBps < 0 {
		taxBps = 0
	}
	tax := applyBps(taxable, Money(taxBps))
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable + tax,
	}
}

// applyBps multiplies amount by a basis-point rate rounding half-up, so the
// result matches the two-decimal value a register would print.
func applyBps(amount, bps Money) Money {
	return (amount*bps + 5000) / 10000
}
