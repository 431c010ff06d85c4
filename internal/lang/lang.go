// Package lang holds cheap language and markup heuristics for summary text.
package lang

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const (
	csOnly = "ěřůĚŘŮ"
	skOnly = "ľĺŕäôĽĹŔÄÔ"
	westSl = "áčďéěíňóřšťúůýžÁČĎÉĚÍŇÓŘŠŤÚŮÝŽľĺŕäôĽĹŔÄÔ"
	daOnly = "æøåÆØÅ"
	ruOnly = "ыэъёЫЭЪЁ"
	ukOnly = "іїєґІЇЄҐ"
)

var daWords = toSet("og", "det", "er", "ikke", "til", "en", "af", "for", "med", "har", "som", "på", "den")
var enWords = toSet("the", "and", "of", "to", "in", "is", "for", "that", "on", "with", "as", "was", "by", "at", "it", "from")

// Detector decides whether a text is written in one target language.
type Detector struct {
	Target string
}

func NewDetector(target string) *Detector {
	return &Detector{Target: target}
}

// IsTarget reports whether text looks like the detector's target language.
func (d *Detector) IsTarget(text string) bool {
	return Is(d.Target, text)
}

func Is(code, text string) bool {
	p := profile(text)
	if p.letters == 0 {
		return false
	}
	switch code {
	case "cs":
		return p.ratio(p.westSlavic) >= 0.02 && p.csOnly >= p.skOnly && p.cyrillic == 0
	case "sk":
		return p.ratio(p.westSlavic) >= 0.02 && p.csOnly == 0 && p.cyrillic == 0
	case "da":
		return p.daOnly > 0 || p.wordRatio(daWords) >= 0.12
	case "uk":
		return p.ratio(p.cyrillic) >= 0.5 && p.ruOnly == 0
	case "en":
		return p.ratio(p.ascii) >= 0.97 && p.wordRatio(enWords) >= 0.08
	}
	return false
}

// Name returns the English display name of a language code ("cs" -> "Czech").
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return display.English.Languages().Name(tag)
}

type stats struct {
	letters, ascii, westSlavic, csOnly, skOnly, daOnly, cyrillic, ruOnly int

	words []string
}

func (s stats) ratio(n int) float64 { return float64(n) / float64(s.letters) }

func (s stats) wordRatio(set map[string]bool) float64 {
	if len(s.words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range s.words {
		if set[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(s.words))
}

func profile(text string) stats {
	var s stats
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		s.letters++
		switch {
		case r < unicode.MaxASCII:
			s.ascii++
		case strings.ContainsRune(westSl, r):
			s.westSlavic++
		case strings.ContainsRune(daOnly, r):
			s.daOnly++
		case unicode.Is(unicode.Cyrillic, r):
			s.cyrillic++
			if strings.ContainsRune(ruOnly, r) {
				s.ruOnly++
			}
		}
		if strings.ContainsRune(csOnly, r) {
			s.csOnly++
		}
		if strings.ContainsRune(skOnly, r) {
			s.skOnly++
		}
	}
	s.words = strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return s
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var tagRe = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>|&(nbsp|amp|lt|gt|quot|#\d+);`)

// LooksHTML reports markup contamination (tags or entities).
func LooksHTML(text string) bool {
	return tagRe.MatchString(text)
}

// StripHTML returns the visible text with whitespace collapsed.
func StripHTML(text string) string {
	if !LooksHTML(text) {
		return strings.Join(strings.Fields(text), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + text + "</body>"))
	if err != nil {
		return strings.Join(strings.Fields(tagRe.ReplaceAllString(text, " ")), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}
