package ingest

import (
	"regexp"
	"strings"

	"github.com/folioenrich/folioenrich/internal/model"
	"golang.org/x/text/unicode/norm"
)

var (
	inlineWS   = regexp.MustCompile(`[^\S\n]+`)
	manyBlank  = regexp.MustCompile(`\n{3,}`)
	aroundNL   = regexp.MustCompile(` *\n *`)
	sentenceRe = regexp.MustCompile(`(?:[.!?]["')\]]*)(?:\s+|$)`)
)

// Abbreviations that end with a period but do not terminate a sentence.
// Keeps citations like "123 F.3d 456 (9th Cir. 1999)" in one sentence.
var abbreviations = map[string]bool{
	"v":    true,
	"vs":   true,
	"no":   true,
	"nos":  true,
	"cir":  true,
	"fed":  true,
	"supp": true,
	"f":    true,
	"u.s":  true,
	"s.ct": true,
	"id":   true,
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"dr":   true,
	"jr":   true,
	"sr":   true,
	"inc":  true,
	"corp": true,
	"co":   true,
	"ltd":  true,
	"llc":  true,
	"llp":  true,
	"st":   true,
	"sec":  true,
	"stat": true,
	"art":  true,
	"para": true,
	"ch":   true,
	"e.g":  true,
	"i.e":  true,
	"etc":  true,
	"al":   true,
	"ed":   true,
	"rev":  true,
	"dep't": true,
}

// NormalizeText produces the canonical text: NFKC normalization, runs of
// inline whitespace collapsed to single spaces, three or more newlines
// collapsed to two, spaces adjacent to newlines removed. All downstream
// spans index into this text.
func NormalizeText(raw string) string {
	text := norm.NFKC.String(raw)
	text = inlineWS.ReplaceAllString(text, " ")
	text = manyBlank.ReplaceAllString(text, "\n\n")
	text = aroundNL.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// SentenceIndex computes sentence spans over normalized text. Boundary
// periods preceded by a known legal abbreviation or a single capital letter
// do not split.
func SentenceIndex(text string) []model.Span {
	if text == "" {
		return nil
	}

	var spans []model.Span
	start := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if isAbbreviationBoundary(text, loc[0]) {
			continue
		}
		end := loc[0] + 1 // include the terminator, exclude trailing space
		for end < loc[1] && text[end] != ' ' && text[end] != '\n' {
			end++
		}
		if end > start {
			spans = append(spans, model.Span{Start: start, End: end})
		}
		start = loc[1]
	}
	if start < len(text) {
		spans = append(spans, model.Span{Start: start, End: len(text)})
	}
	return spans
}

// isAbbreviationBoundary checks the token ending at the period at pos.
func isAbbreviationBoundary(text string, pos int) bool {
	if pos >= len(text) || text[pos] != '.' {
		return false
	}
	tokStart := pos
	for tokStart > 0 {
		c := text[tokStart-1]
		if c == ' ' || c == '\n' || c == '(' || c == '"' {
			break
		}
		tokStart--
	}
	tok := strings.ToLower(strings.TrimSuffix(text[tokStart:pos], "."))
	if abbreviations[tok] {
		return true
	}
	// Single capital initial, e.g. "John Q. Public".
	if len(tok) == 1 && tok[0] >= 'a' && tok[0] <= 'z' {
		return true
	}
	return false
}
