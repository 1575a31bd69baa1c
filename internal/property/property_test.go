package property

import (
	"context"
	"testing"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

func testStore() *ontology.Store {
	return ontology.NewStore(
		[]ontology.Class{
			{IRI: "folio:Court", PreferredLabel: "Court"},
			{IRI: "folio:AppellateCourt", PreferredLabel: "Appellate Court", ParentIRIs: []string{"folio:Court"}},
			{IRI: "folio:Motion", PreferredLabel: "Motion"},
		},
		[]ontology.ObjectProperty{
			{
				IRI:            "folio:denied",
				PreferredLabel: "denied",
				AltLabels:      []string{"refused to grant"},
				DomainIRIs:     []string{"folio:Court"},
				RangeIRIs:      []string{"folio:Motion"},
			},
			{IRI: "folio:or", PreferredLabel: "or"},
		},
	)
}

func sentenceDoc(text string) *model.Document {
	return &model.Document{
		Text:      text,
		Sentences: []model.Span{{Start: 0, End: len(text)}},
	}
}

func TestMatcherConfidence(t *testing.T) {
	m := NewMatcher(testStore(), true)
	text := "The court denied the motion after the state refused to grant relief."

	props := m.Match(text)
	if len(props) != 2 {
		t.Fatalf("expected 2 properties, got %d: %+v", len(props), props)
	}

	denied := props[0]
	if denied.SurfaceText != "denied" {
		t.Fatalf("props[0] surface = %q", denied.SurfaceText)
	}
	if denied.Confidence != confPreferred {
		t.Errorf("denied confidence = %v, want %v", denied.Confidence, confPreferred)
	}
	if denied.PropertyIRI != "folio:denied" {
		t.Errorf("denied iri = %s", denied.PropertyIRI)
	}
	if len(denied.DomainClasses) != 1 || denied.DomainClasses[0] != "folio:Court" {
		t.Errorf("domain = %v", denied.DomainClasses)
	}

	alt := props[1]
	if alt.SurfaceText != "refused to grant" {
		t.Fatalf("props[1] surface = %q", alt.SurfaceText)
	}
	if want := confAlt + multiWordBoost; alt.Confidence != want {
		t.Errorf("alt confidence = %v, want %v", alt.Confidence, want)
	}
	if alt.MatchType != model.MatchAltLabel {
		t.Errorf("alt match type = %s", alt.MatchType)
	}
}

func TestMatcherStopwordFiltered(t *testing.T) {
	m := NewMatcher(testStore(), true)
	if props := m.Match("this or that"); len(props) != 0 {
		t.Fatalf("expected stopword label to be filtered, got %+v", props)
	}
}

func concept(iri string, start, end int, text string) *model.ConceptMatch {
	c := model.NewConceptMatch(model.Span{Start: start, End: end}, text[start:end],
		model.MatchPreferredLabel, 0.9, model.SourceRuler, "ruler")
	c.ConceptIRI = iri
	return c
}

func TestLinkerNearestWithDomainPreference(t *testing.T) {
	text := "The motion reached the appellate court which denied the motion."
	doc := sentenceDoc(text)

	// Order mirrors pipeline output: sorted by span start.
	annotations := []*model.ConceptMatch{
		concept("folio:Motion", 4, 10, text),
		concept("folio:AppellateCourt", 23, 38, text),
		concept("folio:Motion", 56, 62, text),
	}
	props := []*model.PropertyAnnotation{{
		ID:            "p1",
		Span:          model.Span{Start: 45, End: 51},
		SurfaceText:   "denied",
		PropertyIRI:   "folio:denied",
		DomainClasses: []string{"folio:Court"},
		RangeClasses:  []string{"folio:Motion"},
	}}

	l := NewLinker(testStore(), nil, llm.Budget{})
	if errs := l.Link(context.Background(), doc, props, annotations); len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}

	// The nearest preceding concept is the appellate court, a descendant of
	// the allowed domain; the bare motion before it must not win.
	if props[0].LinkedSubjectIRI != "folio:AppellateCourt" {
		t.Errorf("subject = %s", props[0].LinkedSubjectIRI)
	}
	if props[0].LinkedObjectIRI != "folio:Motion" {
		t.Errorf("object = %s", props[0].LinkedObjectIRI)
	}
}

func TestLinkerLLMOverride(t *testing.T) {
	text := "The motion reached the appellate court which denied the motion."
	doc := sentenceDoc(text)
	annotations := []*model.ConceptMatch{
		concept("folio:Motion", 4, 10, text),
		concept("folio:AppellateCourt", 23, 38, text),
		concept("folio:Motion", 56, 62, text),
	}
	props := []*model.PropertyAnnotation{{
		ID:          "p1",
		Span:        model.Span{Start: 45, End: 51},
		SurfaceText: "denied",
		PropertyIRI: "folio:denied",
	}}

	stub := llm.NewStub().Respond("denied",
		`{"subject_iri":"folio:Motion","object_iri":"folio:Motion","confidence":0.9}`)
	l := NewLinker(testStore(), stub, llm.Budget{})
	if errs := l.Link(context.Background(), doc, props, annotations); len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}

	if props[0].LinkedSubjectIRI != "folio:Motion" {
		t.Errorf("subject after override = %s", props[0].LinkedSubjectIRI)
	}
}
