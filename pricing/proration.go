package pricing

import (
	"math/big"

	"github.com/nestwatch/payments/plan"
)

const (
	monthlyPeriodDays = 30
	yearlyPeriodDays  = 365
)

// ProrationResult carries both the billable (clamped) amount and the raw
// signed difference. AmountWei is what gets charged; RawWei is preserved so a
// caller can build a credit policy on top without re-deriving the math.
type ProrationResult struct {
	AmountWei    string
	RawWei       string
	NewChargeWei string
	OldRefundWei string
}

// Proration computes the charge for switching plans with daysRemaining left
// in the current period. Per-day prices use integer floor division over the
// period length; a negative difference clamps to zero (no refund is issued).
func Proration(current, next plan.Plan, daysRemaining int, yearly bool) (ProrationResult, error) {
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	periodDays := big.NewInt(monthlyPeriodDays)
	currentPrice, nextPrice := current.MonthlyPriceWei, next.MonthlyPriceWei
	if yearly {
		periodDays = big.NewInt(yearlyPeriodDays)
		currentPrice, nextPrice = current.YearlyPriceWei, next.YearlyPriceWei
	}

	oldTotal, err := ParseWei(currentPrice)
	if err != nil {
		return ProrationResult{}, err
	}
	newTotal, err := ParseWei(nextPrice)
	if err != nil {
		return ProrationResult{}, err
	}

	days := big.NewInt(int64(daysRemaining))
	oldRefund := new(big.Int).Quo(oldTotal, periodDays)
	oldRefund.Mul(oldRefund, days)
	newCharge := new(big.Int).Quo(newTotal, periodDays)
	newCharge.Mul(newCharge, days)

	raw := new(big.Int).Sub(newCharge, oldRefund)
	amount := raw
	if raw.Sign() < 0 {
		amount = big.NewInt(0)
	}

	return ProrationResult{
		AmountWei:    amount.String(),
		RawWei:       raw.String(),
		NewChargeWei: newCharge.String(),
		OldRefundWei: oldRefund.String(),
	}, nil
}
