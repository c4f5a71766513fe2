package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a currency amount in the shop currency.
type Money = decimal.Decimal

// Zero is the zero amount.
var Zero = decimal.Zero

// RoundMoney rounds to cents, half away from zero. Every amount computed in
// this package and in promo discounts is passed through it.
func RoundMoney(m Money) Money {
	return m.Round(2)
}

// Parse reads a decimal amount such as "9.90".
func Parse(value string) (Money, error) {
	m, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return m, nil
}

// MustParse parses a decimal literal and panics on malformed input. Intended
// for constants and tests.
func MustParse(value string) Money {
	return decimal.RequireFromString(value)
}

// Format renders the amount with exactly two decimals, optionally suffixed
// with an ISO 4217 currency code.
func Format(m Money, currency string) string {
	out := RoundMoney(m).StringFixed(2)
	if currency == "" {
		return out
	}
	return out + " " + currency
}

func clampZero(m Money) Money {
	if m.IsNegative() {
		return Zero
	}
	return m
}
