// Package pricing computes booking totals. All amounts are integer minor
// units (cents); decimal math is only used to apply the fee rate.
package pricing

import (
	"github.com/shopspring/decimal"
)

// DefaultServiceFeeRate is the share of the subtotal charged as service fee.
var DefaultServiceFeeRate = decimal.RequireFromString("0.15")

type Quote struct {
	UnitPriceCents  int64
	Quantity        int
	SubtotalCents   int64
	ServiceFeeCents int64
	TotalCents      int64
}

type Calculator struct {
	feeRate decimal.Decimal
}

func NewCalculator(feeRate decimal.Decimal) *Calculator {
	if feeRate.IsNegative() {
		feeRate = DefaultServiceFeeRate
	}
	return &Calculator{feeRate: feeRate}
}

// Quote prices quantity units at unitPriceCents each. The fee is rounded to
// the nearest cent, halves away from zero.
func (c *Calculator) Quote(unitPriceCents int64, quantity int) Quote {
	subtotal := decimal.NewFromInt(unitPriceCents).Mul(decimal.NewFromInt(int64(quantity)))
	fee := subtotal.Mul(c.feeRate).Round(0)
	return Quote{
		UnitPriceCents:  unitPriceCents,
		Quantity:        quantity,
		SubtotalCents:   subtotal.IntPart(),
		ServiceFeeCents: fee.IntPart(),
		TotalCents:      subtotal.Add(fee).IntPart(),
	}
}

// Major renders cents as a major-unit decimal, e.g. 11500 -> 115.
func Major(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Minor converts a major-unit decimal to cents, rounding to the nearest cent.
func Minor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
