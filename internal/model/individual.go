package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// FormatConfidence renders a confidence for lineage before/after fields.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 4, 64)
}

// IndividualType classifies an extracted OWL individual.
type IndividualType string

const (
	IndividualCitation   IndividualType = "citation"
	IndividualDate       IndividualType = "date"
	IndividualMoney      IndividualType = "money"
	IndividualPercent    IndividualType = "percent"
	IndividualDuration   IndividualType = "duration"
	IndividualAddress    IndividualType = "address"
	IndividualPhone      IndividualType = "phone"
	IndividualEmail      IndividualType = "email"
	IndividualURL        IndividualType = "url"
	IndividualStatute    IndividualType = "statute"
	IndividualCourt      IndividualType = "court"
	IndividualCaseNumber IndividualType = "case_number"
	IndividualOrg        IndividualType = "org"
	IndividualPerson     IndividualType = "person"
	IndividualGPE        IndividualType = "gpe"
)

// Individual is an OWL-style named instance found in the document: a
// citation, party, date, amount and so on.
type Individual struct {
	ID               string         `json:"id"`
	Span             Span           `json:"span"`
	SurfaceText      string         `json:"surface_text"`
	Type             IndividualType `json:"type"`
	NormalizedForm   string         `json:"normalized_form,omitempty"`
	ResolvedURL      string         `json:"resolved_url,omitempty"`
	LinkedConceptIRI string         `json:"linked_concept_iri,omitempty"`
	Confidence       float64        `json:"confidence"`
	Sources          []string       `json:"sources"`
	Lineage          []LineageEvent `json:"lineage,omitempty"`
}

// NewIndividual creates an individual with an assigned id and creation event.
func NewIndividual(span Span, surface string, typ IndividualType, conf float64, source string) *Individual {
	ind := &Individual{
		ID:          uuid.NewString(),
		Span:        span,
		SurfaceText: surface,
		Type:        typ,
		Confidence:  conf,
		Sources:     []string{source},
	}
	ind.AppendLineage("individual_extraction", "created", "", FormatConfidence(conf), source)
	return ind
}

// AppendLineage records a mutation event on the individual.
func (ind *Individual) AppendLineage(stage, action, before, after, reason string) {
	ind.Lineage = append(ind.Lineage, LineageEvent{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Action:    action,
		Before:    before,
		After:     after,
		Reason:    reason,
	})
}

// PropertyAnnotation marks an occurrence of an OWL object property (a legal
// verb or relation) in the text, optionally linked to subject and object
// concept annotations.
type PropertyAnnotation struct {
	ID               string         `json:"id"`
	Span             Span           `json:"span"`
	SurfaceText      string         `json:"surface_text"`
	PropertyIRI      string         `json:"property_iri"`
	PreferredLabel   string         `json:"preferred_label,omitempty"`
	DomainClasses    []string       `json:"domain_classes,omitempty"`
	RangeClasses     []string       `json:"range_classes,omitempty"`
	InverseIRI       string         `json:"inverse_iri,omitempty"`
	LinkedSubjectIRI string         `json:"linked_subject_iri,omitempty"`
	LinkedObjectIRI  string         `json:"linked_object_iri,omitempty"`
	MatchType        MatchType      `json:"match_type"`
	Confidence       float64        `json:"confidence"`
	Sources          []string       `json:"sources"`
	Lineage          []LineageEvent `json:"lineage,omitempty"`
}

// AppendLineage records a mutation event on the property annotation.
func (p *PropertyAnnotation) AppendLineage(stage, action, before, after, reason string) {
	p.Lineage = append(p.Lineage, LineageEvent{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Action:    action,
		Before:    before,
		After:     after,
		Reason:    reason,
	})
}

// Triple is a subject-predicate-object relation derived from sentence
// structure. Subject and object reference annotation ids, never positions.
type Triple struct {
	SubjectID    string `json:"subject_annotation_id"`
	Predicate    string `json:"predicate"`
	ObjectID     string `json:"object_annotation_id"`
	EvidenceSpan Span   `json:"evidence_span"`
	Sentence     string `json:"sentence,omitempty"`
}
