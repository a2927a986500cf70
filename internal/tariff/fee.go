package tariff

import "github.com/shopspring/decimal"

// FeeRule computes the gateway processing fee as clamp(amount*Rate, Minimum, Maximum).
type FeeRule struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal
	Maximum decimal.Decimal
}

func DefaultFeeRule() FeeRule {
	return NewFeeRule(0.02, 50, 1000)
}

func NewFeeRule(rate, minimum, maximum float64) FeeRule {
	return FeeRule{
		Rate:    decimal.NewFromFloat(rate),
		Minimum: decimal.NewFromFloat(minimum),
		Maximum: decimal.NewFromFloat(maximum),
	}
}

func (r FeeRule) Fee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(r.Rate)
	if fee.LessThan(r.Minimum) {
		fee = r.Minimum
	}
	if fee.GreaterThan(r.Maximum) {
		fee = r.Maximum
	}
	return fee.Round(2)
}

// Quote is a priced request before any charge is made.
type Quote struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

func (r FeeRule) Quote(amount decimal.Decimal) Quote {
	fee := r.Fee(amount)
	return Quote{Amount: amount, Fee: fee, Total: amount.Add(fee)}
}
