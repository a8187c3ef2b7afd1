// Package quote turns derived leg midpoints into a symmetric two-sided quote
// and gates it against the price bounds.
package quote

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyquoter/internal/domain"
)

// Bounds are the limits a quote must stay within. A buy price below Floor or
// a sell price above Ceiling makes the whole quote ineligible.
type Bounds struct {
	Floor   decimal.Decimal
	Ceiling decimal.Decimal
}

// DefaultBounds returns the 0.02 / 0.98 bounds.
func DefaultBounds() Bounds {
	return Bounds{
		Floor:   decimal.RequireFromString("0.02"),
		Ceiling: decimal.RequireFromString("0.98"),
	}
}

// Evaluate computes buy and sell prices for both legs around their midpoints
// and reports whether all four are inside b. The prices are returned even when
// the quote is ineligible so callers can log them.
func Evaluate(yesMid, noMid, spread decimal.Decimal, b Bounds) (domain.QuotePrices, bool) {
	p := domain.QuotePrices{
		BuyYes:  yesMid.Sub(spread),
		SellYes: yesMid.Add(spread),
		BuyNo:   noMid.Sub(spread),
		SellNo:  noMid.Add(spread),
	}

	if p.BuyYes.LessThan(b.Floor) || p.BuyNo.LessThan(b.Floor) {
		return p, false
	}
	if p.SellYes.GreaterThan(b.Ceiling) || p.SellNo.GreaterThan(b.Ceiling) {
		return p, false
	}
	return p, true
}
