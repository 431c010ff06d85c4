package translate

import (
	"regexp"
	"strings"
)

var (
	// (Note: ...) and [Note: ...] anywhere in the text.
	inlineNoteRe = regexp.MustCompile(`(?is)[\(\[]\s*(note|disclaimer|translator'?s note)\s*:?[^\)\]]*[\)\]]`)
	// A whole line that is a note or a "Here is the translation" preamble.
	noteLineRe = regexp.MustCompile(`(?i)^\s*(note|disclaimer)\s*:|^\s*here is the (translation|summary)\b.*:?\s*$`)
	// Leading label such as "Translation:" or "Summary:".
	labelRe = regexp.MustCompile(`(?i)^\s*(translation|translated text|summary|shrnutí|překlad)\s*:\s*`)
	// Citation markers like [1] that some search-backed models append.
	citationRe = regexp.MustCompile(`\[\d+\]`)
)

// SanitizeAIText strips machine-translation disclaimers, preambles, citation
// markers and markdown emphasis from model output.
func SanitizeAIText(s string) string {
	s = inlineNoteRe.ReplaceAllString(s, " ")
	s = citationRe.ReplaceAllString(s, "")

	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if noteLineRe.MatchString(line) {
			continue
		}
		line = labelRe.ReplaceAllString(line, "")
		line = strings.NewReplacer("**", "", "__", "").Replace(line)
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Trim(strings.Join(kept, "\n"), `"' `)
}
