package providers

import (
	"github.com/shopspring/decimal"
)

// SignedAmount is a monetary amount with its currency. Credits are positive,
// debits negative; Amount is already signed so arithmetic composes directly.
type SignedAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func Credit(amount decimal.Decimal, currency string) SignedAmount {
	return SignedAmount{Amount: amount.Abs(), Currency: currency}
}

func Debit(amount decimal.Decimal, currency string) SignedAmount {
	return SignedAmount{Amount: amount.Abs().Neg(), Currency: currency}
}

func (s SignedAmount) IsZero() bool {
	return s.Amount.IsZero()
}

func (s SignedAmount) Neg() SignedAmount {
	return SignedAmount{Amount: s.Amount.Neg(), Currency: s.Currency}
}

// Delta returns new − old as a plain decimal. Currencies are assumed equal;
// the transaction write path validates that before events are emitted.
func Delta(oldAmount, newAmount SignedAmount) decimal.Decimal {
	return newAmount.Amount.Sub(oldAmount.Amount)
}
