package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// ASCIILabel folds a display label into printable ASCII so bitmap fonts can render it.
// Diacritics are stripped first; anything still outside ASCII becomes '?'.
func ASCIILabel(s string) string {
	s = RemoveDiacritics(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

// NormalizeIdentifier normalizes a student identifier for lookup (trimmed, upper case).
func NormalizeIdentifier(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
