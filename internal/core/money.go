// Package core provides money parsing and handling utilities.
//
// This file contains the statement currency parser and the conversions
// between decimal amounts and the integer cents the ledger persists.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseCurrency converts a US-formatted statement amount to a decimal.
//
// A leading "$" is stripped, a "(...)" wrapper or leading "-" negates the
// value and thousands separators are removed. The result is rounded to cents.
//
// Examples:
//
//	ParseCurrency("$1,234.56") -> 1234.56
//	ParseCurrency("($45.00)")  -> -45.00
//	ParseCurrency("$(45.00)")  -> -45.00
//	ParseCurrency("$0.00")     -> 0
func ParseCurrency(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrMalformedAmount
	}

	negative := false
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimPrefix(s, "$")
	// "-$5.00" and "$-5.00" both show up in exports
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	s = strings.ReplaceAll(s, ",", "")

	if s == "" || strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrMalformedAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrMalformedAmount
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	d = d.Round(2)
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ToCents converts a decimal amount to integer cents, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatUSD renders an amount the way statements show it, e.g. "$1,234.56" or "($45.00)".
func FormatUSD(d decimal.Decimal) string {
	neg := d.IsNegative()
	digits := d.Abs().StringFixed(2)

	intPart, frac := digits, ""
	if i := strings.IndexByte(digits, '.'); i >= 0 {
		intPart, frac = digits[:i], digits[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	s := "$" + b.String() + frac
	if neg {
		return "(" + s + ")"
	}
	return s
}
