package loyalty

import "math"

// Accrual reports points earned by a purchase and the member's resulting
// balance. Callers persist the balance; this package never writes stores.
type Accrual struct {
	PointsEarned int64 `json:"pointsEarned"`
	NewBalance   int64 `json:"newBalance"`
}

// Accrue computes loyalty points from the pre-discount, pre-tax subtotal in
// minor units. Points are whole units of the major currency scaled by the
// member's tier multiplier, rounded down.
func Accrue(subtotal int64, balance int64, multiplier float64) Accrual {
	if subtotal < 0 || multiplier <= 0 {
		return Accrual{NewBalance: balance}
	}
	earned := int64(math.Floor(float64(subtotal) / 100 * multiplier))
	if earned < 0 {
		earned = 0
	}
	return Accrual{PointsEarned: earned, NewBalance: balance + earned}
}
