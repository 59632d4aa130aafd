package billing

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a decimal money input. Decoding is permissive: JSON numbers and
// numeric strings are accepted, everything else (null, booleans, garbage
// strings, objects) decodes to zero instead of failing the request.
type Amount struct {
	decimal.Decimal
}

// MaxAmount is the largest magnitude, in whole currency units, a bill input
// or total may take.
var MaxAmount = decimal.New(1, 12)

const (
	// maxAmountLiteral caps the length of a numeric literal.
	maxAmountLiteral = 64
	// maxScale is the finest fraction kept from input.
	maxScale = 6
)

// beyondMax stands in for literals whose magnitude cannot be an amount.
var beyondMax = MaxAmount.Add(decimal.NewFromInt(1))

func NewAmount(v float64) Amount { return Amount{decimal.NewFromFloat(v)} }

func AmountFromInt(v int64) Amount { return Amount{decimal.NewFromInt(v)} }

// ParseAmount coerces s to an Amount, returning zero when s is not numeric.
// Numeric literals too long or too large to be an amount come back just above
// MaxAmount so that the calculator rejects them; fractions finer than
// maxScale digits are rounded.
func ParseAmount(s string) Amount {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}
	}
	if len(s) > maxAmountLiteral {
		if strings.Trim(s, "0123456789+-.eE") != "" {
			return Amount{}
		}
		return Amount{signed(beyondMax, strings.HasPrefix(s, "-"))}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}
	}
	return Amount{bound(d)}
}

// bound keeps the coefficient and exponent of d small enough that sums and
// rounding stay cheap. |d| lies in [10^(n+e-1), 10^(n+e)) for n coefficient
// digits and exponent e.
func bound(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.Zero
	}
	magnitude := int64(d.NumDigits()) + int64(d.Exponent())
	switch {
	case magnitude > 13:
		return signed(beyondMax, d.IsNegative())
	case magnitude < -maxScale:
		return decimal.Zero
	case d.Exponent() < -maxScale:
		return d.Round(maxScale)
	}
	return d
}

func signed(d decimal.Decimal, negative bool) decimal.Decimal {
	if negative {
		return d.Neg()
	}
	return d
}

// inRange reports whether d is a usable amount.
func inRange(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	if int64(d.NumDigits())+int64(d.Exponent()) > 13 {
		return false
	}
	return d.Abs().LessThanOrEqual(MaxAmount)
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0:
		a.Decimal = decimal.Zero
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			a.Decimal = decimal.Zero
			return nil
		}
		a.Decimal = ParseAmount(s).Decimal
	default:
		a.Decimal = ParseAmount(string(b)).Decimal
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}
