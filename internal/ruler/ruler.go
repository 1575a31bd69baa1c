// Package ruler is the deterministic arm of concept discovery: it matches
// ontology class labels against the normalized text with word-boundary and
// containment rules, and scores each hit from a fixed confidence schedule.
package ruler

import (
	"github.com/folioenrich/folioenrich/internal/matching"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

// Confidence schedule. Multi-word hits are less ambiguous than single
// words, and preferred labels are stronger evidence than alternatives.
const (
	ConfMultiWordPreferred  = 0.90
	ConfSingleWordPreferred = 0.72
	ConfMultiWordAlt        = 0.65
	ConfSingleWordAlt       = 0.35
)

// minPatternLength filters labels too short to be meaningful matches.
const minPatternLength = 3

// stopwords are common English words that appear as ontology labels but
// are almost always false positives in running text.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "by": true, "for": true, "or": true, "and": true,
	"is": true, "it": true, "be": true, "as": true, "do": true, "no": true,
	"so": true, "up": true, "if": true, "my": true, "me": true, "he": true,
	"we": true, "am": true, "us": true, "go": true, "re": true, "al": true,
	"de": true, "la": true, "le": true, "mr": true, "ms": true, "dr": true,
	"st": true, "vs": true, "id": true, "ie": true, "eg": true, "etc": true,
	"per": true, "via": true, "not": true, "but": true, "has": true,
	"had": true, "was": true, "are": true, "its": true, "may": true,
	"can": true, "did": true, "she": true, "his": true, "her": true,
	"him": true, "our": true, "who": true, "how": true, "all": true,
	"any": true, "new": true, "one": true, "two": true, "out": true,
	"own": true, "set": true, "use": true, "way": true, "day": true,
	"get": true, "see": true, "now": true, "old": true, "end": true,
	"put": true, "run": true, "let": true, "say": true, "too": true,
	"yet": true, "off": true, "try": true, "ask": true, "got": true,
	"met": true, "cut": true, "pay": true, "due": true, "add": true,
}

// Ruler matches class labels deterministically. Build once per ontology
// snapshot; Match is safe for concurrent use after construction.
type Ruler struct {
	acc       ontology.Accessor
	automaton *matching.Automaton
}

// New builds the label automaton from every usable preferred and
// alternative label in the ontology.
func New(acc ontology.Accessor, hyphenAsWord bool) *Ruler {
	r := &Ruler{
		acc:       acc,
		automaton: matching.NewAutomaton(hyphenAsWord),
	}

	seen := make(map[string]bool)
	acc.IterateClasses(func(c ontology.Class) bool {
		r.add(c.IRI, c.PreferredLabel, model.MatchPreferredLabel, seen)
		for _, alt := range c.AltLabels {
			r.add(c.IRI, alt, model.MatchAltLabel, seen)
		}
		return true
	})
	r.automaton.Build()
	return r
}

func (r *Ruler) add(iri, label string, mt model.MatchType, seen map[string]bool) {
	folded := matching.Fold(label)
	if len(folded) < minPatternLength || stopwords[folded] {
		return
	}
	// Preferred labels register first, so an alt label identical to the
	// same class's preferred label is dropped here.
	key := folded + "\x1f" + iri
	if seen[key] {
		return
	}
	seen[key] = true
	r.automaton.Add(label, iri, mt)
}

// PatternCount returns the number of registered label patterns.
func (r *Ruler) PatternCount() int { return r.automaton.Len() }

// Match scans the normalized text and returns one preliminary annotation
// per surviving (span, concept) pair. Identical spans matching distinct
// concepts all survive; the reconciler fuses or arbitrates them later.
func (r *Ruler) Match(text string) []*model.ConceptMatch {
	hits := r.automaton.Scan(text)

	out := make([]*model.ConceptMatch, 0, len(hits))
	for _, hit := range hits {
		mt := hit.Value.(model.MatchType)
		m := model.NewConceptMatch(
			model.Span{Start: hit.Start, End: hit.End},
			text[hit.Start:hit.End],
			mt,
			Confidence(text[hit.Start:hit.End], mt),
			model.SourceRuler,
			"ruler",
		)
		m.ConceptIRI = hit.Key
		if c, err := r.acc.GetClass(hit.Key); err == nil {
			m.PreferredLabel = c.PreferredLabel
			m.Definition = c.Definition
			m.Branches = c.Branches
		}
		out = append(out, m)
	}
	return out
}

// Confidence returns the scheduled score for a surface form and label kind.
func Confidence(surface string, mt model.MatchType) float64 {
	multi := matching.IsMultiWord(surface)
	switch {
	case mt == model.MatchPreferredLabel && multi:
		return ConfMultiWordPreferred
	case mt == model.MatchPreferredLabel:
		return ConfSingleWordPreferred
	case multi:
		return ConfMultiWordAlt
	default:
		return ConfSingleWordAlt
	}
}
