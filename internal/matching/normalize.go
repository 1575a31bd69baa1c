// Package matching implements the multi-pattern string matching core: an
// Aho-Corasick automaton with word-boundary validation and containment-aware
// overlap resolution over half-open character spans.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fold canonicalizes text for pattern keys and surface grouping: NFKC
// normalization followed by lowercasing.
func Fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// FoldCollapse folds and additionally collapses runs of whitespace to a
// single space. Used to align surfaces discovered by different arms.
func FoldCollapse(s string) string {
	return strings.Join(strings.Fields(Fold(s)), " ")
}

// IsMultiWord reports whether a label contains whitespace after folding.
func IsMultiWord(label string) bool {
	return strings.ContainsAny(Fold(label), " \t\n")
}

// wordChar reports whether r belongs to a word for boundary validation.
// Hyphens are word characters by default so "common-law" is not split; the
// policy is configurable at automaton construction.
func wordChar(r rune, hyphenAsWord bool) bool {
	if r == '_' {
		return true
	}
	if r == '-' {
		return hyphenAsWord
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
