// Package merchant cleans statement merchant text into a display name and a matching key.
package merchant

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// noise are tokens banks prepend to card payments.
var noise = map[string]bool{
	"pos":           true,
	"card":          true,
	"carta":         true,
	"visa":          true,
	"mastercard":    true,
	"maestro":       true,
	"contactless":   true,
	"purchase":      true,
	"acquisto":      true,
	"kartenzahlung": true,
}

var titler = cases.Title(language.Und)

// Clean collapses whitespace, drops card and reference noise and title-cases the result.
func Clean(raw string) string {
	fields := strings.Fields(raw)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if isNoise(f) {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		kept = fields
	}
	if len(kept) == 0 {
		return ""
	}
	return titler.String(strings.Join(kept, " "))
}

// Key is the case- and accent-insensitive form used for fingerprints and signatures.
func Key(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// isNoise reports card-number style tokens (four or more digits, masked digits) and known prefixes.
func isNoise(tok string) bool {
	lower := strings.ToLower(strings.Trim(tok, ".,:;-"))
	if noise[lower] {
		return true
	}
	digits, masked := 0, 0
	for _, r := range lower {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '*' || r == 'x' || r == '#':
			masked++
		}
	}
	if digits >= 4 && digits+masked >= len([]rune(lower))-1 {
		return true
	}
	return digits > 0 && masked >= 4
}
