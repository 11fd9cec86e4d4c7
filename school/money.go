package school

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeFinal returns max(0, original - discount + fee + other).
func ComputeFinal(original, discount, fee, other decimal.Decimal) decimal.Decimal {
	final := original.Sub(discount).Add(fee).Add(other)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}

// ParseMoney parses a currency amount such as "300.00".
func ParseMoney(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Message: fmt.Sprintf("invalid amount %q", s)}
	}
	return d, nil
}

// MustMoney is ParseMoney for literals; it panics on bad input.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RequireNonNegative returns a ValidationError naming field when d < 0.
func RequireNonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &ValidationError{Field: field, Message: "must not be negative"}
	}
	return nil
}

// SumFinal totals the final amount of charges.
func SumFinal(charges []Charge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		total = total.Add(c.Final)
	}
	return total
}
