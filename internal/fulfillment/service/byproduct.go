package service

import (
	"github.com/shopspring/decimal"
)

// ExpectedByProductQuantity is main_output_qty x yield_percent / 100, rounded
// half-up to two decimals.
func ExpectedByProductQuantity(mainOutputQty, yieldPercent decimal.Decimal) decimal.Decimal {
	return mainOutputQty.Mul(yieldPercent).DivRound(decimal.NewFromInt(100), 2)
}
