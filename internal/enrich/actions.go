package enrich

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folioenrich/folioenrich/internal/model"
)

// User actions mutate annotation state deterministically. Every action
// appends lineage, persists the job and publishes an update event.
// Actions are idempotent: repeating one leaves the annotation unchanged.

func (s *Service) annotation(id uuid.UUID, annotationID string) (*jobEntry, *model.ConceptMatch, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Result == nil {
		return nil, nil, fmt.Errorf("%w: job %s has no result", model.ErrInput, id)
	}
	m := e.job.Result.Annotation(annotationID)
	if m == nil {
		return nil, nil, fmt.Errorf("%w: annotation %s not found in job %s", model.ErrInput, annotationID, id)
	}
	return e, m, nil
}

func (s *Service) commit(e *jobEntry, m *model.ConceptMatch) {
	s.persist(e)
	if s.store != nil && len(m.Lineage) > 0 {
		last := m.Lineage[len(m.Lineage)-1:]
		if err := s.store.AppendLineage(e.job.ID, last); err != nil {
			s.log.Warn("append lineage", zap.Error(err))
		}
	}
	e.publish(Event{JobID: e.job.ID.String(), Kind: "annotation.updated", Payload: m})
}

// Promote replaces the active concept with one of the annotation's
// backups. The displaced active concept becomes the top backup, so
// promoting the same IRI twice is a no-op.
func (s *Service) Promote(id uuid.UUID, annotationID, backupIRI string) error {
	e, m, err := s.annotation(id, annotationID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if m.ConceptIRI == backupIRI {
		e.mu.Unlock()
		return nil
	}

	var chosen *model.Candidate
	rest := make([]model.Candidate, 0, len(m.Backups))
	for i := range m.Backups {
		if m.Backups[i].IRI == backupIRI {
			c := m.Backups[i]
			chosen = &c
			continue
		}
		rest = append(rest, m.Backups[i])
	}
	if chosen == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is not a backup of annotation %s", model.ErrInput, backupIRI, annotationID)
	}

	displaced := model.Candidate{IRI: m.ConceptIRI, Label: m.PreferredLabel, Score: m.Confidence}
	before := m.ConceptIRI

	m.ConceptIRI = chosen.IRI
	m.PreferredLabel = chosen.Label
	m.Confidence = chosen.Score
	m.Backups = append([]model.Candidate{displaced}, rest...)
	m.State = model.StateConfirmed
	m.AppendLineage("user_action", "promoted", before, chosen.IRI, "backup promoted")
	e.mu.Unlock()

	s.commit(e, m)
	return nil
}

// Reject marks the annotation rejected. The annotation and its history
// stay in the result.
func (s *Service) Reject(id uuid.UUID, annotationID, reason string) error {
	e, m, err := s.annotation(id, annotationID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if m.State == model.StateRejected {
		e.mu.Unlock()
		return nil
	}
	before := string(m.State)
	m.State = model.StateRejected
	m.AppendLineage("user_action", "rejected", before, string(model.StateRejected), reason)
	e.mu.Unlock()

	s.commit(e, m)
	return nil
}

// Restore confirms a previously rejected annotation. The rejection stays
// visible in lineage.
func (s *Service) Restore(id uuid.UUID, annotationID string) error {
	e, m, err := s.annotation(id, annotationID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if m.State == model.StateConfirmed {
		e.mu.Unlock()
		return nil
	}
	before := string(m.State)
	m.State = model.StateConfirmed
	m.AppendLineage("user_action", "restored", before, string(model.StateConfirmed), "")
	e.mu.Unlock()

	s.commit(e, m)
	return nil
}

// CascadePromote promotes the given IRI on every annotation that carries
// it as a backup. Annotations already active on the IRI are untouched.
func (s *Service) CascadePromote(id uuid.UUID, iri string) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.job.Result == nil {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: job %s has no result", model.ErrInput, id)
	}
	var targets []string
	for _, m := range e.job.Result.Annotations {
		if m.ConceptIRI == iri {
			continue
		}
		for _, b := range m.Backups {
			if b.IRI == iri {
				targets = append(targets, m.ID)
				break
			}
		}
	}
	e.mu.Unlock()

	for _, annotationID := range targets {
		if err := s.Promote(id, annotationID, iri); err != nil {
			return len(targets), err
		}
	}
	return len(targets), nil
}

// BulkReject rejects every annotation whose active concept is the IRI.
func (s *Service) BulkReject(id uuid.UUID, iri, reason string) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	if e.job.Result == nil {
		e.mu.Unlock()
		return 0, fmt.Errorf("%w: job %s has no result", model.ErrInput, id)
	}
	var targets []string
	for _, m := range e.job.Result.Annotations {
		if m.ConceptIRI == iri && m.State != model.StateRejected {
			targets = append(targets, m.ID)
		}
	}
	e.mu.Unlock()

	for _, annotationID := range targets {
		if err := s.Reject(id, annotationID, reason); err != nil {
			return len(targets), err
		}
	}
	return len(targets), nil
}

// Lineage returns the annotation's full mutation history.
func (s *Service) Lineage(id uuid.UUID, annotationID string) ([]model.LineageEvent, error) {
	e, m, err := s.annotation(id, annotationID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.LineageEvent(nil), m.Lineage...), nil
}
