package summary

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceRe = regexp.MustCompile(`[^.!?…]+[.!?…]+["”»)]?`)

// Extract builds a heuristic summary: the first three sentences, or the first
// paragraph longer than 80 characters, capped at budget runes.
func Extract(text string, budget int) string {
	var picked []string
	for _, para := range paragraphs(text) {
		for _, s := range sentenceRe.FindAllString(para, -1) {
			s = strings.TrimSpace(s)
			if utf8.RuneCountInString(s) < 20 {
				continue
			}
			picked = append(picked, s)
			if len(picked) == 3 {
				break
			}
		}
		if len(picked) == 3 {
			break
		}
	}

	out := strings.Join(picked, " ")
	if out == "" {
		for _, para := range paragraphs(text) {
			if utf8.RuneCountInString(para) > 80 {
				out = para
				break
			}
		}
	}
	if out == "" {
		out = strings.Join(strings.Fields(text), " ")
	}
	return clip(out, budget)
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clip(s string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(s) <= budget {
		return s
	}
	r := []rune(s)[:budget-1]
	return strings.TrimSpace(string(r)) + "…"
}
