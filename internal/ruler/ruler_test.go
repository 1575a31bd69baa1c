package ruler

import (
	"testing"

	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

func testStore() *ontology.Store {
	return ontology.NewStore([]ontology.Class{
		{
			IRI:            "folio:BreachOfContract",
			PreferredLabel: "Breach of Contract",
			Branches:       []string{"Legal Concepts"},
		},
		{
			IRI:            "folio:Contract",
			PreferredLabel: "Contract",
			AltLabels:      []string{"Agreement"},
			Branches:       []string{"Legal Concepts"},
		},
		{
			IRI:            "folio:The",
			PreferredLabel: "The",
		},
		{
			IRI:            "folio:At",
			PreferredLabel: "At",
		},
	}, nil)
}

func TestMatchNestedSpansBothSurvive(t *testing.T) {
	r := New(testStore(), true)
	text := "The plaintiff alleges breach of contract damages."

	matches := r.Match(text)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}

	outer := matches[0]
	inner := matches[1]
	if outer.SurfaceText != "breach of contract" {
		t.Errorf("outer surface = %q", outer.SurfaceText)
	}
	if inner.SurfaceText != "contract" {
		t.Errorf("inner surface = %q", inner.SurfaceText)
	}
	if !outer.Span.Contains(inner.Span) {
		t.Errorf("outer span %+v does not contain inner %+v", outer.Span, inner.Span)
	}
	if outer.Confidence != ConfMultiWordPreferred {
		t.Errorf("outer confidence = %v, want %v", outer.Confidence, ConfMultiWordPreferred)
	}
	if inner.Confidence != ConfSingleWordPreferred {
		t.Errorf("inner confidence = %v, want %v", inner.Confidence, ConfSingleWordPreferred)
	}
}

func TestMatchStopwordAndShortLabelsFiltered(t *testing.T) {
	r := New(testStore(), true)

	matches := r.Match("The meeting is at noon.")
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}

func TestMatchAltLabel(t *testing.T) {
	r := New(testStore(), true)

	matches := r.Match("The parties signed an agreement yesterday.")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.ConceptIRI != "folio:Contract" {
		t.Errorf("iri = %s", m.ConceptIRI)
	}
	if m.MatchType != model.MatchAltLabel {
		t.Errorf("match type = %s", m.MatchType)
	}
	if m.Confidence != ConfSingleWordAlt {
		t.Errorf("confidence = %v, want %v", m.Confidence, ConfSingleWordAlt)
	}
	if m.PreferredLabel != "Contract" {
		t.Errorf("preferred label = %q", m.PreferredLabel)
	}
}

func TestMatchAnnotationDefaults(t *testing.T) {
	r := New(testStore(), true)

	matches := r.Match("contract")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.State != model.StatePreliminary {
		t.Errorf("state = %s", m.State)
	}
	if !m.HasSource(model.SourceRuler) {
		t.Errorf("sources = %v", m.Sources)
	}
	if len(m.Lineage) != 1 || m.Lineage[0].Action != "created" {
		t.Errorf("lineage = %+v", m.Lineage)
	}
}

func TestConfidenceSchedule(t *testing.T) {
	cases := []struct {
		surface string
		mt      model.MatchType
		want    float64
	}{
		{"breach of contract", model.MatchPreferredLabel, ConfMultiWordPreferred},
		{"contract", model.MatchPreferredLabel, ConfSingleWordPreferred},
		{"binding agreement", model.MatchAltLabel, ConfMultiWordAlt},
		{"agreement", model.MatchAltLabel, ConfSingleWordAlt},
	}
	for _, tc := range cases {
		if got := Confidence(tc.surface, tc.mt); got != tc.want {
			t.Errorf("Confidence(%q, %s) = %v, want %v", tc.surface, tc.mt, got, tc.want)
		}
	}
}
