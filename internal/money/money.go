// Package money converts statement amounts to integer minor units.
package money

import (
	"fmt"
	"strings"
	"unicode"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DecimalStyle tells the parser which separator marks decimals.
type DecimalStyle int

const (
	// StyleAuto guesses from the separators present in each value.
	StyleAuto DecimalStyle = iota
	// StylePoint is 1,234.56.
	StylePoint
	// StyleComma is 1.234,56.
	StyleComma
)

// ParseStyle maps a config/profile value onto a DecimalStyle.
func ParseStyle(s string) (DecimalStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StyleAuto, nil
	case "point", "dot", "us":
		return StylePoint, nil
	case "comma", "eu", "european":
		return StyleComma, nil
	}
	return StyleAuto, fmt.Errorf("unknown decimal style %q", s)
}

// Fraction returns the number of minor-unit digits for a currency code. Unknown codes use 2.
func Fraction(code string) int {
	cur := gomoney.GetCurrency(strings.ToUpper(strings.TrimSpace(code)))
	if cur == nil {
		return 2
	}
	return cur.Fraction
}

// MajorUnit is one whole currency unit expressed in minor units.
func MajorUnit(code string) int64 {
	unit := int64(1)
	for i := 0; i < Fraction(code); i++ {
		unit *= 10
	}
	return unit
}

// ToMinor rounds d to the currency's minor unit and returns it as an integer.
func ToMinor(d decimal.Decimal, code string) int64 {
	return d.Shift(int32(Fraction(code))).Round(0).IntPart()
}

// FromMinor converts minor units back to a decimal amount.
func FromMinor(minor int64, code string) decimal.Decimal {
	return decimal.New(minor, -int32(Fraction(code)))
}

// Format renders minor units with the currency's symbol and separators.
func Format(minor int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if gomoney.GetCurrency(code) == nil {
		return FromMinor(minor, code).StringFixed(int32(Fraction(code))) + " " + code
	}
	return gomoney.New(minor, code).Display()
}

// ParseAmount parses a statement amount such as "1.234,56", "(12.00)", "-€ 7,50" or "45.00-".
func ParseAmount(raw string, style DecimalStyle) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−':
			negative = !negative
		case r == '+', r == '\'', unicode.IsSpace(r), unicode.IsLetter(r), unicode.Is(unicode.Sc, r):
			// sign, grouping, currency code or symbol
		default:
			return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
		}
	}
	num := normalizeSeparators(b.String(), style)
	if num == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites s so '.' is the only (decimal) separator.
func normalizeSeparators(s string, style DecimalStyle) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch style {
	case StylePoint:
		return strings.ReplaceAll(s, ",", "")
	case StyleComma:
		return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	}
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		// a single comma followed by exactly three digits is a thousands separator
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	}
	return s
}
