// Package points holds the currency-to-points arithmetic for the ledger.
// All rounding is round half away from zero (math.Round semantics) on the
// final integer result.
package points

import (
	"errors"
	"math"
)

// CentsPerPoint is the fixed base accrual rate: one point per 25 cents spent.
const CentsPerPoint = 25

var ErrNotFinite = errors.New("amount is not a finite number")

// ToCents converts a currency amount to integer cents.
func ToCents(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrNotFinite
	}
	return int64(math.Round(amount * 100)), nil
}

// BaseEarned returns the base points accrued for a purchase of spentCents.
func BaseEarned(spentCents int64) int {
	return int(math.Round(float64(spentCents) / CentsPerPoint))
}

// RateBonus returns the bonus points for a rate-bearing promotion: the
// fractional rate applied per cent spent, rounded.
func RateBonus(spentCents int64, rate float64) int {
	return int(math.Round(float64(spentCents) * rate))
}
