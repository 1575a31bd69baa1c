package depparse

import "strings"

// irregularLemmas covers the verbs that actually show up in legal prose.
var irregularLemmas = map[string]string{
	"denied":    "deny",
	"held":      "hold",
	"found":     "find",
	"brought":   "bring",
	"sought":    "seek",
	"paid":      "pay",
	"made":      "make",
	"gave":      "give",
	"given":     "give",
	"took":      "take",
	"taken":     "take",
	"won":       "win",
	"lost":      "lose",
	"sued":      "sue",
	"said":      "say",
	"ruled":     "rule",
	"arose":     "arise",
	"arisen":    "arise",
	"upheld":    "uphold",
	"overruled": "overrule",
	"went":      "go",
	"came":      "come",
	"met":       "meet",
	"left":      "leave",
	"sent":      "send",
	"put":       "put",
	"set":       "set",
	"let":       "let",
}

// Lemma reduces an inflected verb to its base form with a small irregular
// table and suffix rules.
func Lemma(word string) string {
	w := strings.ToLower(word)
	if base, ok := irregularLemmas[w]; ok {
		return base
	}

	switch {
	case strings.HasSuffix(w, "ied") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ed") && len(w) > 3:
		stem := w[:len(w)-2]
		if doubledConsonant(stem) {
			return stem[:len(stem)-1]
		}
		if needsFinalE(stem) {
			return stem + "e"
		}
		return stem
	case strings.HasSuffix(w, "ing") && len(w) > 4:
		stem := w[:len(w)-3]
		if doubledConsonant(stem) {
			return stem[:len(stem)-1]
		}
		if needsFinalE(stem) {
			return stem + "e"
		}
		return stem
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "es") && len(w) > 3 &&
		(strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes") ||
			strings.HasSuffix(w, "sses") || strings.HasSuffix(w, "xes")):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && len(w) > 2 && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

func doubledConsonant(stem string) bool {
	if len(stem) < 3 {
		return false
	}
	last := stem[len(stem)-1]
	return last == stem[len(stem)-2] && !isVowel(last) && last != 'l' && last != 's'
}

// needsFinalE restores the dropped silent e ("filed" to "file"). Only
// consonant-vowel-consonant stems qualify; vowel digraphs ("appeal",
// "wait") keep their bare form.
func needsFinalE(stem string) bool {
	if len(stem) < 3 {
		return false
	}
	last := stem[len(stem)-1]
	prev := stem[len(stem)-2]
	if isVowel(last) || !isVowel(prev) || isVowel(stem[len(stem)-3]) {
		return false
	}
	switch last {
	case 'w', 'x', 'y':
		return false
	}
	return true
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
