package property

import (
	"context"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

// Linker binds each property occurrence to its subject and object concept
// annotations. The heuristic takes the nearest preceding and following
// concepts in the same sentence, preferring candidates compatible with the
// property's declared domain and range; the language model, when present,
// validates or overrides that pick.
type Linker struct {
	acc      ontology.Accessor
	provider llm.Provider
	budget   llm.Budget
}

// NewLinker creates a linker. A nil provider keeps the heuristic only.
func NewLinker(acc ontology.Accessor, provider llm.Provider, budget llm.Budget) *Linker {
	return &Linker{acc: acc, provider: provider, budget: budget}
}

// Link fills LinkedSubjectIRI and LinkedObjectIRI in place. Returned errors
// are per-property LM failures; the heuristic result always stands.
func (l *Linker) Link(ctx context.Context, doc *model.Document, props []*model.PropertyAnnotation, annotations []*model.ConceptMatch) []error {
	var errs []error
	for _, p := range props {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return errs
		}

		sentence := doc.SentenceAt(p.Span.Start)
		inSentence := conceptsWithin(annotations, sentence)

		subject := l.pick(before(inSentence, p.Span), p.DomainClasses)
		object := l.pick(after(inSentence, p.Span), p.RangeClasses)
		if subject == nil && object == nil {
			continue
		}
		if subject != nil {
			p.LinkedSubjectIRI = subject.ConceptIRI
		}
		if object != nil {
			p.LinkedObjectIRI = object.ConceptIRI
		}
		p.AppendLineage("property_linking", "linked", "", "",
			"nearest in-sentence concepts")

		if l.provider == nil {
			continue
		}
		if err := l.validate(ctx, doc, p, inSentence, sentence); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// pick returns the candidate closest to the property, preferring concepts
// whose IRI falls under an allowed class when the property declares any.
func (l *Linker) pick(candidates []*model.ConceptMatch, allowed []string) *model.ConceptMatch {
	if len(candidates) == 0 {
		return nil
	}
	if len(allowed) > 0 {
		for _, c := range candidates {
			if l.compatible(c.ConceptIRI, allowed) {
				return c
			}
		}
	}
	return candidates[0]
}

func (l *Linker) compatible(iri string, allowed []string) bool {
	for _, a := range allowed {
		if iri == a || l.acc.IsDescendant(iri, a) {
			return true
		}
	}
	return false
}

// validate asks the model to confirm or override the heuristic binding.
// An empty IRI in the response clears the corresponding link.
func (l *Linker) validate(ctx context.Context, doc *model.Document, p *model.PropertyAnnotation, inSentence []*model.ConceptMatch, sentence model.Span) error {
	subjects := iris(before(inSentence, p.Span))
	objects := iris(after(inSentence, p.Span))
	prompt := llm.BuildPropertyLinkPrompt(
		p.SurfaceText, p.PreferredLabel,
		doc.Text[sentence.Start:sentence.End],
		subjects, objects,
	)

	var resp llm.LinkResponse
	if err := llm.StructuredInto(ctx, l.provider, prompt, llm.LinkSchema, l.budget, &resp); err != nil {
		return err
	}

	changed := false
	if resp.SubjectIRI != p.LinkedSubjectIRI && (resp.SubjectIRI == "" || contains(subjects, resp.SubjectIRI)) {
		p.LinkedSubjectIRI = resp.SubjectIRI
		changed = true
	}
	if resp.ObjectIRI != p.LinkedObjectIRI && (resp.ObjectIRI == "" || contains(objects, resp.ObjectIRI)) {
		p.LinkedObjectIRI = resp.ObjectIRI
		changed = true
	}
	if changed {
		p.AppendLineage("property_linking", "relinked", "", "",
			l.provider.Name()+" override")
	}
	return nil
}

func conceptsWithin(annotations []*model.ConceptMatch, sentence model.Span) []*model.ConceptMatch {
	var out []*model.ConceptMatch
	for _, a := range annotations {
		if a.State == model.StateRejected {
			continue
		}
		if a.Span.Start >= sentence.Start && a.Span.End <= sentence.End {
			out = append(out, a)
		}
	}
	return out
}

// before returns the concepts ending at or before the span, nearest first.
func before(concepts []*model.ConceptMatch, span model.Span) []*model.ConceptMatch {
	var out []*model.ConceptMatch
	for i := len(concepts) - 1; i >= 0; i-- {
		if concepts[i].Span.End <= span.Start {
			out = append(out, concepts[i])
		}
	}
	return out
}

// after returns the concepts starting at or after the span, nearest first.
func after(concepts []*model.ConceptMatch, span model.Span) []*model.ConceptMatch {
	var out []*model.ConceptMatch
	for _, c := range concepts {
		if c.Span.Start >= span.End {
			out = append(out, c)
		}
	}
	return out
}

func iris(concepts []*model.ConceptMatch) []string {
	out := make([]string, 0, len(concepts))
	for _, c := range concepts {
		out = append(out, c.ConceptIRI)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
