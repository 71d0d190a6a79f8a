package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 48

// Slug converts a search term into a lowercase, dash-separated token suitable
// for file names. Accents are folded ("Café" becomes "cafe"). Returns "clips"
// when nothing usable remains.
func Slug(term string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), term)
	if err != nil {
		folded = term
	}
	folded = cases.Lower(language.Und).String(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxSlugLength {
		out = strings.TrimRight(out[:maxSlugLength], "-")
	}
	if out == "" {
		return "clips"
	}
	return out
}

// Title renders a search term for summaries ("ocean  waves" becomes "Ocean Waves").
func Title(term string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(term), " "))
}
