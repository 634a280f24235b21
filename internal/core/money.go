// Package core holds the finance domain types, input validation and the
// dashboard aggregations.
//
// Amounts are decimal.Decimal values with at most two fractional digits.
// They are rendered as plain JSON numbers.
package core

import (
	"github.com/shopspring/decimal"
)

// MaxAmount is the exclusive upper bound of a storable amount (NUMERIC(10,2)).
var MaxAmount = decimal.New(1, 8)

var hundred = decimal.NewFromInt(100)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// NormalizeAmount rounds to cents.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns part/whole*100 rounded to one decimal, or zero when whole
// is not positive.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(1)
}
