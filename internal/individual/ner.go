package individual

import (
	"strings"
	"unicode"

	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/jdkato/prose/v2"
)

// NERExtractor finds person and place names with the statistical tagger.
// The tagger reports entity strings without offsets, so occurrences are
// located by scanning the text left to right.
type NERExtractor struct{}

// NewNERExtractor returns the tagger-backed extractor.
func NewNERExtractor() *NERExtractor { return &NERExtractor{} }

// Name returns "ner".
func (e *NERExtractor) Name() string { return "ner" }

// Extract tags the text and emits one individual per located occurrence.
func (e *NERExtractor) Extract(text string) []*model.Individual {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil
	}

	var out []*model.Individual
	// Cursor per entity string so repeated mentions each get their own span.
	cursors := make(map[string]int)
	for _, ent := range doc.Entities() {
		var typ model.IndividualType
		var conf float64
		switch ent.Label {
		case "PERSON":
			typ, conf = model.IndividualPerson, 0.80
		case "GPE":
			typ, conf = model.IndividualGPE, 0.78
		default:
			continue
		}

		mention := strings.TrimSpace(ent.Text)
		if len(mention) < 2 {
			continue
		}
		idx := strings.Index(text[cursors[mention]:], mention)
		if idx < 0 {
			continue
		}
		start := cursors[mention] + idx
		cursors[mention] = start + len(mention)

		out = append(out, model.NewIndividual(
			model.Span{Start: start, End: start + len(mention)},
			mention, typ, conf, "ner",
		))
	}
	return out
}

// orgExtractor finds organizations by their corporate designators. The
// tagger's ORG coverage is weak on legal text, so this stays rule-based.
type orgExtractor struct{}

var orgRunStop = map[string]bool{
	"Plaintiff": true, "Defendant": true, "Appellant": true,
	"Appellee": true, "Petitioner": true, "Respondent": true,
	"The": true, "Mr.": true, "Ms.": true, "Mrs.": true, "Dr.": true,
}

var orgSuffixes = []string{
	"Inc.", "Inc", "LLC", "L.L.C.", "LLP", "L.L.P.", "Ltd.", "Ltd",
	"Corp.", "Corp", "Corporation", "Company", "Co.", "P.C.", "PLLC",
	"N.A.", "S.A.", "GmbH", "PLC",
}

func (orgExtractor) Name() string { return "org" }

// Extract walks capitalized runs that end in a corporate designator.
func (orgExtractor) Extract(text string) []*model.Individual {
	var out []*model.Individual
	words := splitWithOffsets(text)
	for i, w := range words {
		if !isOrgSuffix(w.text) {
			continue
		}
		// Walk back over the capitalized name run, allowing "&" and "of".
		// Party-role words and honorifics preceding the name are not part
		// of it.
		start := i
		for start > 0 {
			prev := words[start-1].text
			if orgRunStop[strings.TrimRight(prev, ",")] {
				break
			}
			if isCapitalizedWord(prev) || prev == "&" || prev == "of" {
				start--
				continue
			}
			break
		}
		if start == i {
			continue
		}
		begin := words[start].offset
		end := w.offset + len(strings.TrimRight(w.text, ",;"))
		surface := text[begin:end]
		out = append(out, model.NewIndividual(
			model.Span{Start: begin, End: end},
			surface, model.IndividualOrg, 0.82, "org",
		))
	}
	return out
}

type offsetWord struct {
	text   string
	offset int
}

func splitWithOffsets(text string) []offsetWord {
	var words []offsetWord
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, offsetWord{text[start:i], start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, offsetWord{text[start:], start})
	}
	return words
}

func isOrgSuffix(w string) bool {
	w = strings.TrimRight(w, ",;")
	for _, s := range orgSuffixes {
		if w == s {
			return true
		}
	}
	return false
}

func isCapitalizedWord(w string) bool {
	w = strings.TrimRight(w, ",")
	if w == "" {
		return false
	}
	r := []rune(w)[0]
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}
