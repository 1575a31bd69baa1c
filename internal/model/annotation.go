package model

import (
	"time"

	"github.com/google/uuid"
)

// Span is a half-open [Start, End) character range into the normalized text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of characters covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether other lies fully inside s without being equal to it.
func (s Span) Contains(other Span) bool {
	return s.Start <= other.Start && other.End <= s.End && s != other
}

// Overlaps reports whether the two spans share at least one character.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// MatchType records how a concept annotation was produced.
type MatchType string

const (
	MatchPreferredLabel MatchType = "preferred_label"
	MatchAltLabel       MatchType = "alt_label"
	MatchSemantic       MatchType = "semantic"
	MatchLLM            MatchType = "llm"
	MatchExpanded       MatchType = "expanded"
)

// Source identifies which pipeline arm contributed evidence for an annotation.
type Source string

const (
	SourceRuler       Source = "ruler"
	SourceLLM         Source = "llm"
	SourceSemantic    Source = "semantic"
	SourceStringMatch Source = "string_match"
)

// State is the user-visible lifecycle state of an annotation.
type State string

const (
	StatePreliminary State = "preliminary"
	StateConfirmed   State = "confirmed"
	StateRejected    State = "rejected"
)

// Candidate is one ranked alternative concept for an annotation.
type Candidate struct {
	IRI   string  `json:"iri"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// LineageEvent records a single mutation of an annotation. Every score or
// state change appends exactly one event; nothing is ever removed.
type LineageEvent struct {
	Timestamp time.Time `json:"ts"`
	Stage     string    `json:"stage"`
	Action    string    `json:"action"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// ConceptMatch binds a span of the normalized text to a FOLIO concept IRI
// with calibrated confidence and ranked backup candidates.
type ConceptMatch struct {
	ID             string         `json:"id"`
	Span           Span           `json:"span"`
	SurfaceText    string         `json:"surface_text"`
	ConceptIRI     string         `json:"concept_iri"`
	PreferredLabel string         `json:"preferred_label,omitempty"`
	Definition     string         `json:"definition,omitempty"`
	Branches       []string       `json:"branches,omitempty"`
	BackupBranches []string       `json:"backup_branches,omitempty"`
	MatchType      MatchType      `json:"match_type"`
	Confidence     float64        `json:"confidence"`
	Backups        []Candidate    `json:"backup_candidates,omitempty"`
	Sources        []Source       `json:"sources"`
	State          State          `json:"state"`
	Lineage        []LineageEvent `json:"lineage,omitempty"`
}

// NewConceptMatch creates an annotation in the preliminary state with a
// freshly assigned id and a creation lineage event.
func NewConceptMatch(span Span, surface string, mt MatchType, conf float64, src Source, stage string) *ConceptMatch {
	m := &ConceptMatch{
		ID:          uuid.NewString(),
		Span:        span,
		SurfaceText: surface,
		MatchType:   mt,
		Confidence:  conf,
		Sources:     []Source{src},
		State:       StatePreliminary,
	}
	m.AppendLineage(stage, "created", "", FormatConfidence(conf), "")
	return m
}

// AppendLineage records a mutation event on the annotation.
func (m *ConceptMatch) AppendLineage(stage, action, before, after, reason string) {
	m.Lineage = append(m.Lineage, LineageEvent{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Action:    action,
		Before:    before,
		After:     after,
		Reason:    reason,
	})
}

// AddSource appends a source to the multiset. Sources only ever grow.
func (m *ConceptMatch) AddSource(src Source) {
	m.Sources = append(m.Sources, src)
}

// HasSource reports whether the annotation carries at least one occurrence
// of src.
func (m *ConceptMatch) HasSource(src Source) bool {
	for _, s := range m.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// SetConfidence updates the fused score and records the change.
func (m *ConceptMatch) SetConfidence(stage string, conf float64, reason string) {
	before := FormatConfidence(m.Confidence)
	m.Confidence = conf
	m.AppendLineage(stage, "rescored", before, FormatConfidence(conf), reason)
}

// AddBackup appends a candidate unless its IRI is already present or matches
// the active IRI. Backups stay ordered by descending score.
func (m *ConceptMatch) AddBackup(c Candidate) {
	if c.IRI == m.ConceptIRI {
		return
	}
	for _, b := range m.Backups {
		if b.IRI == c.IRI {
			return
		}
	}
	m.Backups = append(m.Backups, c)
	for i := len(m.Backups) - 1; i > 0; i-- {
		if m.Backups[i].Score > m.Backups[i-1].Score {
			m.Backups[i], m.Backups[i-1] = m.Backups[i-1], m.Backups[i]
		}
	}
}
