package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultStopWords are dropped before comparing titles. Entries are already
// folded to lowercase ASCII where they had diacritics.
var DefaultStopWords = []string{
	// English
	"the", "and", "for", "with", "from", "that", "this", "into", "over", "after", "before",
	"about", "amid", "its", "his", "her", "their", "are", "was", "were", "has", "have", "had",
	"will", "would", "can", "could", "not", "but", "out", "off", "than", "then", "how", "why",
	"what", "who", "when", "where", "says", "said", "new", "report", "reports", "via",
	// Czech
	"jak", "ale", "tak", "jako", "pro", "pri", "pod", "nad", "byl", "byla", "bylo", "bude",
	"jsou", "jeho", "jeji", "jejich", "ktery", "ktera", "ktere", "podle", "rekl", "uvedl",
	"nove", "novy", "nova", "let", "roku",
}

var lower = cases.Lower(language.Und)

// Fold strips diacritics and lowercases s.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return lower.String(folded)
}

// Normalize folds a title, drops possessive 's and replaces punctuation with
// spaces. Hyphens survive only inside words.
func Normalize(title string) string {
	s := Fold(strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(title))

	var b strings.Builder
	for _, field := range strings.Fields(s) {
		field = strings.TrimSuffix(field, "'s")
		var w strings.Builder
		for _, r := range field {
			switch {
			case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
				w.WriteRune(r)
			default:
				w.WriteRune(' ')
			}
		}
		for _, tok := range strings.Fields(w.String()) {
			tok = strings.Trim(tok, "-")
			if tok == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(tok)
		}
	}
	return b.String()
}

// Tokens returns the comparable token set of a title.
func Tokens(title string, stop map[string]bool) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(Normalize(title)) {
		if stop[tok] || len([]rune(tok)) < 3 {
			continue
		}
		set[tok] = true
	}
	return set
}

// Jaccard is |a∩b| / |a∪b|; two empty sets score 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// StopSet merges the defaults with extra words.
func StopSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(DefaultStopWords)+len(extra))
	for _, w := range DefaultStopWords {
		set[w] = true
	}
	for _, w := range extra {
		if w = Fold(strings.TrimSpace(w)); w != "" {
			set[w] = true
		}
	}
	return set
}
