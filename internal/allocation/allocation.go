package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/avello/storefront/internal/model"
)

// Allocate covers price from the given funds in their given order:
// each fund gives up min(remaining, fund.Amount) until the price is
// covered or the funds run out. The input slice is not modified; the
// caller persists the returned balances.
//
// Allocate does not check sufficiency. If the funds total less than
// the price, every fund is drained and the shortfall comes back as
// the remaining amount. Callers must reject insufficient balances
// before allocating.
func Allocate(funds []model.Fund, price decimal.Decimal) ([]model.Fund, decimal.Decimal) {
	updated := make([]model.Fund, len(funds))
	copy(updated, funds)

	remaining := price
	for i := range updated {
		if remaining.Sign() <= 0 {
			break
		}
		deduction := decimal.Min(remaining, updated[i].Amount)
		updated[i].Amount = updated[i].Amount.Sub(deduction)
		remaining = remaining.Sub(deduction)
	}
	return updated, remaining
}
