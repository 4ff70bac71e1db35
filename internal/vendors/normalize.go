package vendors

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// directional matches bidi control characters that statement text copied
// out of RTL documents tends to carry.
var directional = runes.Predicate(func(r rune) bool {
	switch r {
	case '‎', '‏', '‪', '‫', '‬', '‭', '‮',
		'⁦', '⁧', '⁨', '⁩':
		return true
	}
	return false
})

var normalizer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(directional),
	norm.NFC,
)

// Normalize produces the canonical vendor key: case-folded, trimmed,
// internal whitespace collapsed, diacritics and directional marks
// stripped. Keys produced here are what the mapping table stores and what
// both exact and fuzzy lookup compare against.
func Normalize(vendor string) string {
	s, _, err := transform.String(normalizer, vendor)
	if err != nil {
		s = vendor
	}
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
