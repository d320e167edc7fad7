// convert.go implements the best-effort conversion of an amount into the
// reference currency. The result is advisory (a "Euro" display field next to
// the charged amount); it never participates in what is actually charged,
// which is why float arithmetic is acceptable here and nowhere else in this
// package.

package money

import (
	"math"
	"strconv"
)

// ConvertToEuro converts a decimal amount string in the given currency into
// a two-decimal euro string. Returns "" when the currency is unsupported,
// its rate is still unknown, or the amount does not parse as a float.
// Callers omit the field on ""; an unavailable conversion is not an error.
//
// The quotient gets a fixed +0.005 bias and is then truncated to whole
// cents, which together round half up: a third decimal of 5 or more bumps
// the cent, anything less is dropped. An exact two-decimal input through
// the reference rate of 1.0 passes through unchanged.
func (t *Table) ConvertToEuro(amount, code string) string {
	c, ok := t.Lookup(code)
	if !ok || c.Rate <= 0 {
		return ""
	}

	v, err := strconv.ParseFloat(amount, 64)
	if err != nil || v < 0 {
		return ""
	}

	cents := math.Floor(v/c.Rate*100 + 0.5)
	if cents < 0 || cents >= 1e15 {
		return ""
	}

	return FormatAmount(uint64(cents), 2)
}
