// Package property finds occurrences of OWL object properties (legal verbs
// and relations) and binds them to subject and object concepts.
package property

import (
	"github.com/google/uuid"

	"github.com/folioenrich/folioenrich/internal/matching"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

const (
	confPreferred = 0.85
	confAlt       = 0.75
	// Multi-word property labels are far less ambiguous than bare verbs.
	multiWordBoost = 0.05
)

// Most property labels are verbs worth keeping even when short; only the
// worst false-positive words are excluded.
var propertyStopwords = map[string]bool{
	"not": true, "and": true, "near": true, "equal": true,
	"can": true, "has": true, "or": true,
}

// Matcher matches object-property labels with the same boundary and
// containment rules as concept matching. Build once; Match is safe for
// concurrent use.
type Matcher struct {
	acc       ontology.Accessor
	automaton *matching.Automaton
}

// NewMatcher builds the property automaton from preferred and alternative
// labels.
func NewMatcher(acc ontology.Accessor, hyphenAsWord bool) *Matcher {
	m := &Matcher{
		acc:       acc,
		automaton: matching.NewAutomaton(hyphenAsWord),
	}
	acc.IterateObjectProperties(func(p ontology.ObjectProperty) bool {
		m.add(p.IRI, p.PreferredLabel, model.MatchPreferredLabel)
		for _, alt := range p.AltLabels {
			m.add(p.IRI, alt, model.MatchAltLabel)
		}
		return true
	})
	m.automaton.Build()
	return m
}

func (m *Matcher) add(iri, label string, mt model.MatchType) {
	folded := matching.Fold(label)
	if len(folded) <= 2 || propertyStopwords[folded] {
		return
	}
	m.automaton.Add(label, iri, mt)
}

// PatternCount returns the number of registered label patterns.
func (m *Matcher) PatternCount() int { return m.automaton.Len() }

// Match scans the text and returns one annotation per surviving hit.
func (m *Matcher) Match(text string) []*model.PropertyAnnotation {
	hits := m.automaton.Scan(text)

	out := make([]*model.PropertyAnnotation, 0, len(hits))
	for _, hit := range hits {
		mt := hit.Value.(model.MatchType)
		conf := confPreferred
		if mt == model.MatchAltLabel {
			conf = confAlt
		}
		if matching.IsMultiWord(hit.Pattern) {
			conf += multiWordBoost
			if conf > 1.0 {
				conf = 1.0
			}
		}

		p := &model.PropertyAnnotation{
			ID:          uuid.NewString(),
			Span:        model.Span{Start: hit.Start, End: hit.End},
			SurfaceText: text[hit.Start:hit.End],
			PropertyIRI: hit.Key,
			MatchType:   mt,
			Confidence:  conf,
			Sources:     []string{"property_matcher"},
		}
		if prop, err := m.acc.GetObjectProperty(hit.Key); err == nil {
			p.PreferredLabel = prop.PreferredLabel
			p.DomainClasses = prop.DomainIRIs
			p.RangeClasses = prop.RangeIRIs
			p.InverseIRI = prop.InverseIRI
		}
		p.AppendLineage("property_extraction", "created", "",
			model.FormatConfidence(conf), string(mt))
		out = append(out, p)
	}
	return out
}
