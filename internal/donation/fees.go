// Package donation holds the pure money arithmetic for gifts: processing fee
// add-ons and percentage splits across allocation targets.
package donation

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidFeeRate = errors.New("fee rate must be in [0, 1)")

// Quote is the priced form of a donation request.
type Quote struct {
	AmountCents       int64 `json:"amount_cents"`
	FeeAmountCents    int64 `json:"fee_amount_cents"`
	TotalChargedCents int64 `json:"total_charged_cents"`
}

type Calculator struct {
	rate decimal.Decimal
}

func NewCalculator(rate decimal.Decimal) (*Calculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, ErrInvalidFeeRate
	}
	return &Calculator{rate: rate}, nil
}

func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// FeeAmount rounds up so the donor never under-covers the processing fee.
func (c *Calculator) FeeAmount(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(c.rate).Ceil().IntPart()
}

// ChargedFeeCents is the part of the fee the donor actually pays: zero unless they opted in.
func (q Quote) ChargedFeeCents() int64 {
	return q.TotalChargedCents - q.AmountCents
}

func (c *Calculator) Quote(amount int64, coverFees bool) Quote {
	fee := c.FeeAmount(amount)
	total := amount
	if coverFees {
		total += fee
	}
	return Quote{AmountCents: amount, FeeAmountCents: fee, TotalChargedCents: total}
}
