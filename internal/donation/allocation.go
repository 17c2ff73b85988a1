package donation

import (
	"errors"

	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNoShares      = errors.New("at least one allocation is required")
	ErrInvalidShare  = errors.New("each allocation needs exactly one target and a percentage between 0.01 and 100 with at most two decimals")
	ErrPercentageSum = errors.New("allocation percentages must sum to 100")
)

var (
	hundred      = decimal.NewFromInt(100)
	sumTolerance = decimal.RequireFromString("0.01")
)

// Share is a requested split: a target and its percentage of the gift.
type Share struct {
	Target     domain.AllocationTarget
	Percentage decimal.Decimal
}

// Split turns shares into allocations whose amounts sum exactly to amount.
// Each amount is round(amount * pct / 100); the rounding residual lands on the first one.
// Percentages are stored with two decimals, so finer ones are rejected rather than rounded.
func Split(amount int64, shares []Share) ([]domain.Allocation, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}

	total := decimal.Zero
	for _, s := range shares {
		if !s.Target.Valid() || !s.Percentage.IsPositive() || s.Percentage.GreaterThan(hundred) ||
			!s.Percentage.Equal(s.Percentage.Round(2)) {
			return nil, ErrInvalidShare
		}
		total = total.Add(s.Percentage)
	}
	if total.Sub(hundred).Abs().GreaterThan(sumTolerance) {
		return nil, ErrPercentageSum
	}

	whole := decimal.NewFromInt(amount)
	allocs := make([]domain.Allocation, len(shares))
	var assigned int64
	for i, s := range shares {
		cents := whole.Mul(s.Percentage).Div(hundred).Round(0).IntPart()
		allocs[i] = domain.Allocation{
			AllocationTarget: s.Target,
			Percentage:       s.Percentage.StringFixed(2),
			AmountCents:      cents,
		}
		assigned += cents
	}
	settleResidual(allocs, amount-assigned)

	return allocs, nil
}

// settleResidual puts the rounding difference on the first allocation. Rounding every
// share half-up can overshoot by more than the first share holds on tiny gifts, so a
// negative residual spills over to the next allocations instead of going below zero.
func settleResidual(allocs []domain.Allocation, residual int64) {
	if residual >= 0 {
		allocs[0].AmountCents += residual
		return
	}
	for i := range allocs {
		if residual == 0 {
			return
		}
		take := min(allocs[i].AmountCents, -residual)
		allocs[i].AmountCents -= take
		residual += take
	}
}

// Single is the widget shape: the whole gift to one nonprofit.
func Single(amount int64, target domain.AllocationTarget) []domain.Allocation {
	return []domain.Allocation{{
		AllocationTarget: target,
		Percentage:       hundred.StringFixed(2),
		AmountCents:      amount,
	}}
}
