package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxHandleLength bounds generated handles
const MaxHandleLength = 100

var ligatures = strings.NewReplacer(
	"œ", "oe", "Œ", "OE",
	"æ", "ae", "Æ", "AE",
	"ß", "ss",
)

// RemoveDiacritics strips accents via NFD decomposition ("Été" → "Ete")
func RemoveDiacritics(s string) string {
	s = ligatures.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// Handle builds a URL-safe slug from a title: lower-cased, accents and
// punctuation dropped, whitespace runs turned into single hyphens, truncated
// to MaxHandleLength. "Produit Été #1!" becomes "produit-ete-1".
func Handle(title string) string {
	s := strings.ToLower(RemoveDiacritics(title))

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingHyphen = true
		}
	}

	out := b.String()
	if len(out) > MaxHandleLength {
		out = strings.TrimRight(out[:MaxHandleLength], "-")
	}
	return out
}

// MatchKey folds a name for case-insensitive exact matching
func MatchKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// foldKey makes column names comparable: case, accents, and _/space/- variants are ignored
func foldKey(s string) string {
	s = strings.ToLower(RemoveDiacritics(strings.TrimSpace(s)))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
