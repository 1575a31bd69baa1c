package individual

import (
	"context"
	"strings"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

// typeClassHints maps individual types to ontology branch keywords used to
// filter which nearby concepts are plausible classes for an instance.
var typeClassHints = map[model.IndividualType][]string{
	model.IndividualCourt:   {"court"},
	model.IndividualPerson:  {"actor", "person", "party"},
	model.IndividualOrg:     {"actor", "organization", "party"},
	model.IndividualStatute: {"law", "statute", "legal authorities"},
	model.IndividualGPE:     {"location", "jurisdiction"},
}

// Linker ties extracted individuals to the ontology class they
// instantiate: the nearest concept annotation in the same sentence, with
// an optional language-model confirmation.
type Linker struct {
	acc      ontology.Accessor
	provider llm.Provider
	budget   llm.Budget
}

// NewLinker creates a linker. A nil provider keeps the heuristic only.
func NewLinker(acc ontology.Accessor, provider llm.Provider, budget llm.Budget) *Linker {
	return &Linker{acc: acc, provider: provider, budget: budget}
}

// Link fills LinkedConceptIRI in place. Individuals with no concept in
// their sentence stay unlinked; that is not an error. Returned errors are
// per-individual LM failures.
func (l *Linker) Link(ctx context.Context, doc *model.Document, individuals []*model.Individual, annotations []*model.ConceptMatch) []error {
	var errs []error
	for _, ind := range individuals {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return errs
		}

		sentence := doc.SentenceAt(ind.Span.Start)
		candidates := conceptsAround(annotations, sentence, ind.Span, ind.Type)
		if len(candidates) == 0 {
			continue
		}

		chosen := candidates[0]
		ind.LinkedConceptIRI = chosen.ConceptIRI
		ind.AppendLineage("individual_linking", "linked", "", chosen.ConceptIRI,
			"nearest in-sentence concept")

		if l.provider == nil {
			continue
		}
		if err := l.validate(ctx, doc, ind, candidates, sentence); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// validate asks the model to confirm or override the nearest-concept
// link. Only candidate IRIs or empty are accepted from the response.
func (l *Linker) validate(ctx context.Context, doc *model.Document, ind *model.Individual, candidates []*model.ConceptMatch, sentence model.Span) error {
	candidateIRIs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		candidateIRIs = append(candidateIRIs, c.ConceptIRI)
	}
	prompt := llm.BuildIndividualLinkPrompt(
		ind.SurfaceText, string(ind.Type),
		doc.Text[sentence.Start:sentence.End],
		candidateIRIs,
	)

	var resp llm.LinkResponse
	if err := llm.StructuredInto(ctx, l.provider, prompt, llm.LinkSchema, l.budget, &resp); err != nil {
		return err
	}

	if resp.ConceptIRI == ind.LinkedConceptIRI {
		return nil
	}
	if resp.ConceptIRI != "" && !containsString(candidateIRIs, resp.ConceptIRI) {
		return nil
	}
	before := ind.LinkedConceptIRI
	ind.LinkedConceptIRI = resp.ConceptIRI
	ind.AppendLineage("individual_linking", "relinked", before, resp.ConceptIRI,
		l.provider.Name()+" override")
	return nil
}

// conceptsAround returns the non-rejected concepts in the sentence sorted
// by distance to the individual. When the individual's type declares
// branch hints and any candidate matches one, hinted candidates move to
// the front while keeping their distance order.
func conceptsAround(annotations []*model.ConceptMatch, sentence, span model.Span, typ model.IndividualType) []*model.ConceptMatch {
	var all []*model.ConceptMatch
	for _, a := range annotations {
		if a.State == model.StateRejected {
			continue
		}
		if a.Span.Start >= sentence.Start && a.Span.End <= sentence.End && !a.Span.Overlaps(span) {
			all = append(all, a)
		}
	}
	sortByDistance(all, span)

	hints := typeClassHints[typ]
	if len(hints) == 0 {
		return all
	}
	var hinted, rest []*model.ConceptMatch
	for _, c := range all {
		if matchesHint(c.Branches, hints) {
			hinted = append(hinted, c)
		} else {
			rest = append(rest, c)
		}
	}
	if len(hinted) == 0 {
		return all
	}
	return append(hinted, rest...)
}

func matchesHint(branches, hints []string) bool {
	for _, b := range branches {
		lb := strings.ToLower(b)
		for _, h := range hints {
			if strings.Contains(lb, h) {
				return true
			}
		}
	}
	return false
}

func sortByDistance(concepts []*model.ConceptMatch, span model.Span) {
	dist := func(s model.Span) int {
		if s.End <= span.Start {
			return span.Start - s.End
		}
		return s.Start - span.End
	}
	for i := 1; i < len(concepts); i++ {
		for j := i; j > 0 && dist(concepts[j].Span) < dist(concepts[j-1].Span); j-- {
			concepts[j], concepts[j-1] = concepts[j-1], concepts[j]
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
