package pipeline

import (
	"fmt"
	"sort"

	"github.com/folioenrich/folioenrich/internal/matching"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

// expandValue rides along each automaton pattern and links a found
// occurrence back to its anchor annotation.
type expandValue struct {
	iri        string
	altVariant bool
}

// Expander sweeps the full text for further occurrences of every concept
// that survived resolution, including alternate-label variants the
// discovery arms never saw.
type Expander struct {
	acc          ontology.Accessor
	hyphenAsWord bool
	altScale     float64
}

// NewExpander creates an expander. altScale discounts occurrences found
// through an alternate label relative to the anchor's confidence.
func NewExpander(acc ontology.Accessor, hyphenAsWord bool, altScale float64) *Expander {
	if altScale <= 0 || altScale > 1 {
		altScale = 0.95
	}
	return &Expander{acc: acc, hyphenAsWord: hyphenAsWord, altScale: altScale}
}

// Expand returns the input annotations merged with newly found
// occurrences, sorted by (start, end, IRI). Existing annotations are
// never displaced; an occurrence identical in span and concept to a
// survivor only gains a string-match source.
func (e *Expander) Expand(text string, matches []*model.ConceptMatch) []*model.ConceptMatch {
	live := liveMatches(matches)
	if len(live) == 0 {
		return sortAnnotations(matches)
	}

	// Anchor confidence per IRI: the best surviving score for that
	// concept seeds every new occurrence.
	anchors := make(map[string]*model.ConceptMatch)
	for _, m := range live {
		if cur, ok := anchors[m.ConceptIRI]; !ok || m.Confidence > cur.Confidence {
			anchors[m.ConceptIRI] = m
		}
	}

	auto := matching.NewAutomaton(e.hyphenAsWord)
	for iri := range anchors {
		c, err := e.acc.GetClass(iri)
		if err != nil {
			continue
		}
		auto.Add(c.PreferredLabel, patternKey(c.PreferredLabel, iri), expandValue{iri: iri})
		for _, alt := range c.AltLabels {
			auto.Add(alt, patternKey(alt, iri), expandValue{iri: iri, altVariant: true})
		}
	}
	auto.Build()

	byKey := make(map[string]*model.ConceptMatch, len(matches))
	for _, m := range matches {
		byKey[occKey(m.Span, m.ConceptIRI)] = m
	}

	out := append([]*model.ConceptMatch(nil), matches...)
	for _, hit := range auto.Scan(text) {
		val := hit.Value.(expandValue)
		span := model.Span{Start: hit.Start, End: hit.End}

		if existing, ok := byKey[occKey(span, val.iri)]; ok {
			if !existing.HasSource(model.SourceStringMatch) {
				existing.AddSource(model.SourceStringMatch)
				existing.AppendLineage("expander", "source_added", "", "", "occurrence_reconfirmed")
			}
			continue
		}
		if clashesWithExisting(span, val.iri, matches) {
			continue
		}

		anchor := anchors[val.iri]
		conf := anchor.Confidence
		if val.altVariant {
			conf *= e.altScale
		}

		occ := model.NewConceptMatch(span, text[span.Start:span.End], model.MatchExpanded, conf, model.SourceStringMatch, "expander")
		occ.ConceptIRI = val.iri
		occ.PreferredLabel = anchor.PreferredLabel
		occ.Definition = anchor.Definition
		occ.Branches = append([]string(nil), anchor.Branches...)
		occ.BackupBranches = append([]string(nil), anchor.BackupBranches...)
		byKey[occKey(span, val.iri)] = occ
		out = append(out, occ)
	}

	return sortAnnotations(out)
}

// clashesWithExisting applies the overlap policy against survivors: a
// partial overlap loses to any equal-or-longer existing span, while
// containment and exact nesting coexist.
func clashesWithExisting(span model.Span, iri string, matches []*model.ConceptMatch) bool {
	for _, m := range matches {
		if m.State == model.StateRejected || !m.Span.Overlaps(span) {
			continue
		}
		if m.Span == span || m.Span.Contains(span) || span.Contains(m.Span) {
			continue
		}
		if m.Span.Len() >= span.Len() {
			return true
		}
	}
	return false
}

func sortAnnotations(matches []*model.ConceptMatch) []*model.ConceptMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End < b.Span.End
		}
		return a.ConceptIRI < b.ConceptIRI
	})
	return matches
}

func patternKey(label, iri string) string {
	return matching.FoldCollapse(label) + "\x1f" + iri
}

func occKey(span model.Span, iri string) string {
	return fmt.Sprintf("%d:%d:%s", span.Start, span.End, iri)
}
