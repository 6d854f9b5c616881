package model

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a BRL money value.
// Serializes as a JSON number with two decimals ("89.00" → 89.00) and accepts
// either numbers or numeric strings on input, since Mercado Pago returns both.
type Amount struct {
	decimal.Decimal
}

// NewAmount builds an Amount from a float literal, rounded to cents.
func NewAmount(f float64) Amount {
	return Amount{decimal.NewFromFloat(f).Round(2)}
}

// ParseAmount converts a decimal string ("99.00", "1234.5") to an Amount.
// Empty strings are zero.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return Amount{d.Round(2)}, nil
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return Amount{a.Decimal.Add(b.Decimal)} }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return Amount{a.Decimal.Sub(b.Decimal)} }

// Mul returns a * n.
func (a Amount) Mul(n int) Amount { return Amount{a.Decimal.Mul(decimal.NewFromInt(int64(n)))} }

// Div returns a / n rounded to cents. n must be positive.
func (a Amount) Div(n int) Amount {
	return Amount{a.Decimal.Div(decimal.NewFromInt(int64(n))).Round(2)}
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b.Decimal) {
		return a
	}
	return b
}

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.Decimal.IsNegative() }

// Equal compares by value, ignoring representation ("10" == "10.00").
func (a Amount) Equal(b Amount) bool { return a.Decimal.Equal(b.Decimal) }

// Float64 returns the nearest float, for transports without decimal types.
func (a Amount) Float64() float64 { return a.InexactFloat64() }

// String formats with two decimals.
func (a Amount) String() string { return a.StringFixed(2) }

// MarshalJSON emits an unquoted number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}

// UnmarshalJSON accepts 89, 89.0, "89.00" and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	data = bytes.Trim(data, `"`)
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
