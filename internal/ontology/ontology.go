// Package ontology provides read access to the FOLIO legal ontology: class
// and object-property lookup, branch membership and descendant checks. The
// in-memory store is a process-wide read-only singleton built at startup;
// no pipeline stage mutates it.
package ontology

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/folioenrich/folioenrich/internal/model"
)

// Class is one ontology concept.
type Class struct {
	IRI            string   `json:"iri"`
	PreferredLabel string   `json:"preferred_label"`
	AltLabels      []string `json:"alt_labels,omitempty"`
	Branches       []string `json:"branches,omitempty"`
	Definition     string   `json:"definition,omitempty"`
	ParentIRIs     []string `json:"parent_iris,omitempty"`
}

// ObjectProperty is one OWL object property (a legal verb or relation).
type ObjectProperty struct {
	IRI            string   `json:"iri"`
	PreferredLabel string   `json:"preferred_label"`
	AltLabels      []string `json:"alt_labels,omitempty"`
	DomainIRIs     []string `json:"domain_iris,omitempty"`
	RangeIRIs      []string `json:"range_iris,omitempty"`
	InverseIRI     string   `json:"inverse_iri,omitempty"`
	Definition     string   `json:"definition,omitempty"`
}

// Accessor is the collaborator contract the pipeline consumes.
type Accessor interface {
	// IterateClasses streams every class; returning false stops iteration.
	IterateClasses(fn func(Class) bool)

	// IterateObjectProperties streams every object property.
	IterateObjectProperties(fn func(ObjectProperty) bool)

	// GetClass returns the class for an IRI or an error wrapping
	// model.ErrOntology when unknown.
	GetClass(iri string) (Class, error)

	// GetObjectProperty returns the object property for an IRI or an error
	// wrapping model.ErrOntology when unknown.
	GetObjectProperty(iri string) (ObjectProperty, error)

	// BranchesFor returns the branch set for an IRI (empty when unknown).
	BranchesFor(iri string) []string

	// IsDescendant reports whether iri is a (transitive) descendant of
	// ancestorIRI. An IRI is not its own descendant.
	IsDescendant(iri, ancestorIRI string) bool
}

// Store is the in-memory Accessor implementation.
type Store struct {
	classes    map[string]Class
	classOrder []string
	props      map[string]ObjectProperty
	propOrder  []string

	descMu   sync.RWMutex
	descMemo map[[2]string]bool
}

type storeFile struct {
	Classes          []Class          `json:"classes"`
	ObjectProperties []ObjectProperty `json:"object_properties"`
}

// NewStore builds a store from class and property records.
func NewStore(classes []Class, props []ObjectProperty) *Store {
	s := &Store{
		classes:  make(map[string]Class, len(classes)),
		props:    make(map[string]ObjectProperty, len(props)),
		descMemo: make(map[[2]string]bool),
	}
	for _, c := range classes {
		if _, dup := s.classes[c.IRI]; !dup {
			s.classOrder = append(s.classOrder, c.IRI)
		}
		s.classes[c.IRI] = c
	}
	for _, p := range props {
		if _, dup := s.props[p.IRI]; !dup {
			s.propOrder = append(s.propOrder, p.IRI)
		}
		s.props[p.IRI] = p
	}
	sort.Strings(s.classOrder)
	sort.Strings(s.propOrder)
	return s
}

// LoadFile reads an ontology snapshot from a JSON file.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology: %w", err)
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ontology %s: %w", path, err)
	}
	return NewStore(f.Classes, f.ObjectProperties), nil
}

// IterateClasses streams classes in IRI order for determinism.
func (s *Store) IterateClasses(fn func(Class) bool) {
	for _, iri := range s.classOrder {
		if !fn(s.classes[iri]) {
			return
		}
	}
}

// IterateObjectProperties streams object properties in IRI order.
func (s *Store) IterateObjectProperties(fn func(ObjectProperty) bool) {
	for _, iri := range s.propOrder {
		if !fn(s.props[iri]) {
			return
		}
	}
}

// GetClass returns the class for iri.
func (s *Store) GetClass(iri string) (Class, error) {
	c, ok := s.classes[iri]
	if !ok {
		return Class{}, fmt.Errorf("%w: unknown class %s", model.ErrOntology, iri)
	}
	return c, nil
}

// GetObjectProperty returns the object property for iri.
func (s *Store) GetObjectProperty(iri string) (ObjectProperty, error) {
	p, ok := s.props[iri]
	if !ok {
		return ObjectProperty{}, fmt.Errorf("%w: unknown property %s", model.ErrOntology, iri)
	}
	return p, nil
}

// BranchesFor returns the branch set for iri.
func (s *Store) BranchesFor(iri string) []string {
	return s.classes[iri].Branches
}

// IsDescendant walks parent links breadth-first with memoization. The
// ontology is a DAG with multiple inheritance, so visited tracking guards
// against shared ancestors.
func (s *Store) IsDescendant(iri, ancestorIRI string) bool {
	if iri == ancestorIRI {
		return false
	}
	key := [2]string{iri, ancestorIRI}

	s.descMu.RLock()
	v, ok := s.descMemo[key]
	s.descMu.RUnlock()
	if ok {
		return v
	}

	found := false
	visited := map[string]bool{iri: true}
	queue := append([]string(nil), s.classes[iri].ParentIRIs...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if cur == ancestorIRI {
			found = true
			break
		}
		queue = append(queue, s.classes[cur].ParentIRIs...)
	}

	s.descMu.Lock()
	s.descMemo[key] = found
	s.descMu.Unlock()
	return found
}

// Branches returns the sorted set of branch names across all classes.
func (s *Store) Branches() []string {
	set := make(map[string]bool)
	for _, c := range s.classes {
		for _, b := range c.Branches {
			set[b] = true
		}
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// ClassCount returns the number of loaded classes.
func (s *Store) ClassCount() int { return len(s.classes) }

// PropertyCount returns the number of loaded object properties.
func (s *Store) PropertyCount() int { return len(s.props) }
