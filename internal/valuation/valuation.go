// Package valuation computes leveraged position values with fixed-precision
// decimal arithmetic. No float64 anywhere on the money path.
package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Value returns the current worth of a leveraged position:
//
//	principal + principal * (current-initial)/initial * leverage
//
// clamped at zero. Gains and losses are both amplified by the leverage
// multiplier; a position can never be worth less than nothing.
func Value(principal decimal.Decimal, leverage int64, initialPrice, currentPrice decimal.Decimal) (decimal.Decimal, error) {
	if principal.IsNegative() {
		return decimal.Zero, fmt.Errorf("valuation: negative principal %s", principal)
	}
	if leverage < 1 {
		return decimal.Zero, fmt.Errorf("valuation: leverage %d below 1", leverage)
	}
	if !initialPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("valuation: non-positive initial price %s", initialPrice)
	}
	if currentPrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("valuation: negative current price %s", currentPrice)
	}

	lev := decimal.NewFromInt(leverage)
	pnl := principal.Mul(currentPrice.Sub(initialPrice)).Div(initialPrice).Mul(lev)
	value := principal.Add(pnl)
	if value.IsNegative() {
		return decimal.Zero, nil
	}
	return value, nil
}

// Bust reports whether a position valued with the given inputs is wiped out.
func Bust(principal decimal.Decimal, leverage int64, initialPrice, currentPrice decimal.Decimal) (bool, error) {
	v, err := Value(principal, leverage, initialPrice, currentPrice)
	if err != nil {
		return false, err
	}
	return v.IsZero() && principal.IsPositive(), nil
}
