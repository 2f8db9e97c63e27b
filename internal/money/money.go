package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents). The exponent is fixed at 2.
type Money int64

// Scale is the number of fraction digits carried by Money.
const Scale = 2

// Zero is the empty amount.
const Zero Money = 0

// ErrInvalidAmount is returned when a textual amount cannot be parsed.
var ErrInvalidAmount = errors.New("money: invalid amount")

// FromDecimal converts a decimal currency amount into minor units, rounding half-up once.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(Scale).Round(0).IntPart())
}

// FromMajor builds an amount from whole currency units.
func FromMajor(units int64) Money {
	return Money(units * 100)
}

// Parse reads a decimal string such as "700.00" or "75".
func Parse(value string) (Money, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return FromDecimal(d), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -Scale)
}

// String renders the amount with exactly two fraction digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(Scale)
}

// MarshalJSON encodes the amount as an unquoted decimal number, e.g. 850.00.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
