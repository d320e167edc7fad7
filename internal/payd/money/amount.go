// Package money implements the amount arithmetic and the currency table for
// the payd daemon.
//
// Amounts as Minor Units
// ======================
//
// Wire amounts are decimal strings ("10.42"). Internally every amount is a
// uint64 count of the currency's minor unit (1042 cents), which keeps all
// arithmetic exact. Each currency declares how many decimal digits its minor
// unit has: two for EUR or USD, zero for JPY.
//
// The Zero Sentinel
// =================
//
// ParseAmount signals failure by returning 0. That makes a literal zero
// amount ("0", "0.00") indistinguishable from garbage input, and the daemon
// leans into it: zero amounts are rejected everywhere, since no payment over
// nothing is meaningful. Callers must treat 0 as "invalid", never as "free".
//
// Overflow is checked on every digit rather than after the fact, so inputs
// like a 48-digit amount fail cleanly instead of wrapping.
package money

import (
	"math"
	"strconv"
)

// ParseAmount converts a decimal amount string into minor units. digits is
// the currency's minor unit count (0-4). The accepted grammar is an optional
// leading '+', one or more integer digits, then at most one '.' followed by
// at most digits fractional digits. Missing fractional digits are padded
// with zeros, so "23.5" with two digits parses to 2350.
//
// Returns 0 on any malformed input, on overflow, and for a literal zero.
func ParseAmount(s string, digits int) uint64 {
	if s == "" {
		return 0
	}

	i := 0
	if s[0] == '+' {
		i++
	}

	var n uint64
	sawDigit := false
	sawDot := false
	frac := 0

	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			d := uint64(c - '0')
			// Per-digit overflow guard: refuse the shift if it cannot fit.
			if n > (math.MaxUint64-d)/10 {
				return 0
			}
			n = n*10 + d
			sawDigit = true
			if sawDot {
				frac++
				if frac > digits {
					return 0
				}
			}
		case c == '.':
			// A decimal point is only meaningful when the currency has
			// fractional digits, and only once, and only after an integer part.
			if sawDot || digits <= 0 || !sawDigit {
				return 0
			}
			sawDot = true
		default:
			return 0
		}
	}

	if !sawDigit {
		return 0
	}

	// Pad the missing fractional digits: "23" at two digits is 2300.
	for ; frac < digits; frac++ {
		if n > math.MaxUint64/10 {
			return 0
		}
		n *= 10
	}

	return n
}

// FormatAmount renders minor units back into the canonical decimal form for
// the given digit count: FormatAmount(2350, 2) returns "23.50" and
// FormatAmount(23, 0) returns "23". This is the exact inverse of ParseAmount
// for every value ParseAmount accepts.
func FormatAmount(n uint64, digits int) string {
	s := strconv.FormatUint(n, 10)
	if digits <= 0 {
		return s
	}

	// Left-pad so there is at least one integer digit: 5 cents is "0.05".
	for len(s) <= digits {
		s = "0" + s
	}

	cut := len(s) - digits
	return s[:cut] + "." + s[cut:]
}
