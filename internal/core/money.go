// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Conversions to and from decimal text go
// through shopspring/decimal and always round to two places, half away from
// zero.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. The sign is not constrained: expenses and
// income records may carry negative values.
type Money struct {
	Cents int64
}

// NewMoney rounds d to cents.
func NewMoney(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

// MoneyFromFloat is a convenience for literals in tests and defaults.
func MoneyFromFloat(f float64) Money {
	return NewMoney(decimal.NewFromFloat(f))
}

// ParseMoney converts a decimal string to Money with half-away-from-zero
// rounding on the third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234
//	ParseMoney("12,345") -> 1235
//	ParseMoney("-0.5")   -> -50
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return checkedMoney(d)
}

// maxAmount leaves headroom for sums of stored amounts in int64 cents.
var maxAmount = decimal.New((1<<63-1)/100, -2)

// checkedMoney rejects amounts whose cents would not fit comfortably in int64.
func checkedMoney(d decimal.Decimal) (Money, error) {
	if d.Abs().GreaterThan(maxAmount) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return NewMoney(d), nil
}

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float64 returns the amount as a float for display and chart payloads.
// Use cents for calculations.
func (m Money) Float64() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Mul multiplies by a quantity.
func (m Money) Mul(qty int) Money { return Money{Cents: m.Cents * int64(qty)} }

func (m Money) IsNegative() bool { return m.Cents < 0 }

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	v, err := checkedMoney(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Percent returns part/whole*100 rounded to two decimals, or zero when whole
// is not positive.
func Percent(part, whole Money) float64 {
	if whole.Cents <= 0 {
		return 0
	}
	return part.Decimal().
		Div(whole.Decimal()).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}
