// Package depparse derives subject-predicate-object triples from sentence
// structure. It tags sentences with the statistical part-of-speech tagger
// and links the concepts flanking a verbal predicate; no language model is
// involved.
package depparse

import (
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/folioenrich/folioenrich/internal/model"
)

// auxiliaries never serve as the predicate when a content verb follows.
var auxiliaries = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "has": true, "have": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"shall": true, "should": true, "may": true, "might": true,
	"must": true, "can": true, "could": true,
}

// Extract emits one triple per sentence predicate that has a concept
// annotation on each side. Predicates matching a property occurrence carry
// its IRI; bare verbs carry their lemma. Subject and object reference
// annotation ids.
func Extract(doc *model.Document, annotations []*model.ConceptMatch, props []*model.PropertyAnnotation) []model.Triple {
	var out []model.Triple
	for _, sent := range doc.Sentences {
		concepts := conceptsWithin(annotations, sent)
		if len(concepts) < 2 {
			continue
		}

		sentText := doc.Text[sent.Start:sent.End]
		verbs := verbSpans(sentText, sent.Start)
		for _, v := range verbs {
			subject := nearestBefore(concepts, v.start)
			object := nearestAfter(concepts, v.end)
			if subject == nil || object == nil || subject == object {
				continue
			}
			out = append(out, model.Triple{
				SubjectID:    subject.ID,
				Predicate:    predicateFor(v, props),
				ObjectID:     object.ID,
				EvidenceSpan: model.Span{Start: v.start, End: v.end},
				Sentence:     strings.TrimSpace(sentText),
			})
		}
	}
	return dedupe(out)
}

type verb struct {
	text  string
	start int
	end   int
}

// verbSpans tags the sentence and returns content-verb spans in document
// coordinates. The tagger reports tokens without offsets, so each token is
// located with a left-to-right cursor.
func verbSpans(sentText string, base int) []verb {
	pd, err := prose.NewDocument(sentText, prose.WithExtraction(false))
	if err != nil {
		return nil
	}

	tokens := pd.Tokens()
	var verbs []verb
	cursor := 0
	for i, tok := range tokens {
		idx := strings.Index(sentText[cursor:], tok.Text)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		cursor = start + len(tok.Text)

		if !strings.HasPrefix(tok.Tag, "VB") {
			continue
		}
		if auxiliaries[strings.ToLower(tok.Text)] && followedByVerb(tokens, i) {
			continue
		}
		verbs = append(verbs, verb{
			text:  tok.Text,
			start: base + start,
			end:   base + start + len(tok.Text),
		})
	}
	return verbs
}

func followedByVerb(tokens []prose.Token, i int) bool {
	for _, tok := range tokens[i+1:] {
		if strings.HasPrefix(tok.Tag, "VB") {
			return true
		}
		// Adverbs may sit between auxiliary and verb ("was summarily denied").
		if !strings.HasPrefix(tok.Tag, "RB") {
			return false
		}
	}
	return false
}

// predicateFor prefers a matched property IRI covering the verb span.
func predicateFor(v verb, props []*model.PropertyAnnotation) string {
	for _, p := range props {
		if p.Span.Start <= v.start && v.end <= p.Span.End {
			return p.PropertyIRI
		}
	}
	return Lemma(v.text)
}

func conceptsWithin(annotations []*model.ConceptMatch, sentence model.Span) []*model.ConceptMatch {
	var out []*model.ConceptMatch
	for _, a := range annotations {
		if a.State == model.StateRejected {
			continue
		}
		if a.Span.Start >= sentence.Start && a.Span.End <= sentence.End {
			out = append(out, a)
		}
	}
	return out
}

func nearestBefore(concepts []*model.ConceptMatch, pos int) *model.ConceptMatch {
	var best *model.ConceptMatch
	for _, c := range concepts {
		if c.Span.End <= pos && (best == nil || c.Span.End > best.Span.End) {
			best = c
		}
	}
	return best
}

func nearestAfter(concepts []*model.ConceptMatch, pos int) *model.ConceptMatch {
	var best *model.ConceptMatch
	for _, c := range concepts {
		if c.Span.Start >= pos && (best == nil || c.Span.Start < best.Span.Start) {
			best = c
		}
	}
	return best
}

func dedupe(triples []model.Triple) []model.Triple {
	type key struct {
		s, p, o string
	}
	seen := make(map[key]bool, len(triples))
	out := triples[:0]
	for _, t := range triples {
		k := key{t.SubjectID, t.Predicate, t.ObjectID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}
