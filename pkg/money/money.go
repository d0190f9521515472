// Package money provides the fixed-point currency representation used
// everywhere inside the engine. All arithmetic happens on integer cents;
// ToCents is the single coercion boundary for values crossing the
// persistence or transport layers as floats, strings or json.Number.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is a monetary amount in integer cents (two-decimal fixed point).
type Cents int64

// FromFloat converts a decimal currency amount to Cents, rounding
// half-up (away from zero) at the second decimal.
func FromFloat(v float64) Cents {
	if v >= 0 {
		return Cents(math.Floor(v*100 + 0.5))
	}
	return Cents(math.Ceil(v*100 - 0.5))
}

// ToCents coerces a loosely-typed value into Cents. Supported inputs:
// integer types (already cents), float64 (decimal units), numeric strings
// (decimal units) and json.Number. Anything else is an error; callers must
// not fall back to ad hoc conversion.
func ToCents(v any) (Cents, error) {
	switch n := v.(type) {
	case Cents:
		return n, nil
	case int64:
		return Cents(n), nil
	case int:
		return Cents(n), nil
	case float64:
		return FromFloat(n), nil
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(n)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported monetary type %T", v)
	}
}

// parseDecimal parses a decimal-unit string ("205", "205.5", "205.00")
// without going through float64, so large amounts stay exact.
func parseDecimal(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse monetary value %q: %w", s, err)
	}
	cents := units * 100

	if frac != "" {
		// Keep three digits so the half-up rounding below sees the carry.
		padded := (frac + "000")[:3]
		sub, err := strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse monetary value %q: %w", s, err)
		}
		cents += (sub + 5) / 10
	}
	if neg {
		cents = -cents
	}
	return Cents(cents), nil
}

// ApplyBasisPoints returns c * bps / 10000 rounded half-up at the cent.
// Used for percentage rewards (e.g. a 2.5% daily profit is 250 bps).
func ApplyBasisPoints(c Cents, bps int64) Cents {
	product := int64(c) * bps
	if product >= 0 {
		return Cents((product + 5000) / 10000)
	}
	return Cents((product - 5000) / 10000)
}

// Float returns the decimal-unit value for client responses.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// String renders the amount with two decimals, e.g. "205.00".
func (c Cents) String() string {
	sign := ""
	n := int64(c)
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%02d", sign, n/100, n%100)
}
