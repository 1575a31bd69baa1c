package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/worker"
)

// metadataBookend is how much of each document end the synthesizer sees.
// Captions, signatures and dates cluster at the edges.
const metadataBookend = 2000

// Synthesizer produces the document-level metadata record from the full
// pipeline context in one model call, with a deterministic fallback
// assembled from extracted individuals when the model is offline.
type Synthesizer struct {
	provider llm.Provider
	budget   llm.Budget
	limiter  *worker.Limiter
}

// NewSynthesizer creates a metadata synthesizer.
func NewSynthesizer(provider llm.Provider, budget llm.Budget, limiter *worker.Limiter) *Synthesizer {
	return &Synthesizer{provider: provider, budget: budget, limiter: limiter}
}

// Synthesize fills res.Metadata. Model failures fall back to the minimal
// record rather than leaving metadata absent.
func (s *Synthesizer) Synthesize(ctx context.Context, doc *model.Document, res *model.JobResult) {
	if s.provider != nil {
		if md := s.fromModel(ctx, doc, res); md != nil {
			res.Metadata = md
			return
		}
	}
	res.Metadata = minimalMetadata(res)
	res.AddQualitySignal("metadata", "synthesized from extraction only")
}

func (s *Synthesizer) fromModel(ctx context.Context, doc *model.Document, res *model.JobResult) *model.DocumentMetadata {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, "metadata"); err != nil {
			return nil
		}
	}

	opening := doc.Text
	if len(opening) > metadataBookend {
		opening = opening[:metadataBookend]
	}
	closing := ""
	if len(doc.Text) > 2*metadataBookend {
		closing = doc.Text[len(doc.Text)-metadataBookend:]
	}

	prompt := llm.BuildMetadataPrompt(res.DocumentType, opening, closing, metadataContext(res))

	raw, err := s.provider.Structured(ctx, prompt, llm.MetadataSchema, s.budget)
	if err != nil {
		res.AddQualitySignal("metadata", fmt.Sprintf("synthesis failed: %v", err))
		return nil
	}
	var md model.DocumentMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		res.AddQualitySignal("metadata", fmt.Sprintf("synthesis response malformed: %v", err))
		return nil
	}
	return &md
}

// metadataContext assembles the extraction evidence the prompt injects,
// grouped by kind with stable ordering.
func metadataContext(res *model.JobResult) map[string][]string {
	out := make(map[string][]string)

	add := func(kind, v string) {
		for _, cur := range out[kind] {
			if cur == v {
				return
			}
		}
		out[kind] = append(out[kind], v)
	}

	for _, ind := range res.Individuals {
		v := ind.SurfaceText
		if ind.NormalizedForm != "" {
			v = ind.NormalizedForm
		}
		add(string(ind.Type), v)
	}
	for _, label := range topConceptLabels(res, 25) {
		add("concepts", label)
	}
	for _, t := range res.Triples {
		subj := res.Annotation(t.SubjectID)
		obj := res.Annotation(t.ObjectID)
		if subj == nil || obj == nil {
			continue
		}
		add("relations", fmt.Sprintf("%s %s %s", subj.SurfaceText, t.Predicate, obj.SurfaceText))
	}
	return out
}

// minimalMetadata builds the offline record directly from individuals and
// branch frequency.
func minimalMetadata(res *model.JobResult) *model.DocumentMetadata {
	md := &model.DocumentMetadata{}

	for _, ind := range individualsInOrder(res.Individuals) {
		switch ind.Type {
		case model.IndividualPerson, model.IndividualOrg:
			md.Parties = appendUnique(md.Parties, ind.SurfaceText)
		case model.IndividualCourt:
			if md.Court == "" {
				md.Court = ind.SurfaceText
			}
		case model.IndividualCaseNumber:
			if md.CaseNumber == "" {
				md.CaseNumber = ind.SurfaceText
			}
		case model.IndividualDate:
			v := ind.NormalizedForm
			if v == "" {
				v = ind.SurfaceText
			}
			md.DatesMentioned = appendUnique(md.DatesMentioned, v)
		}
	}

	for _, a := range branchFrequencyAreas(res) {
		md.DominantBranches = append(md.DominantBranches, a.Area)
	}
	return md
}

func individualsInOrder(inds []*model.Individual) []*model.Individual {
	out := append([]*model.Individual(nil), inds...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Span.Start < out[j].Span.Start })
	return out
}

func appendUnique(list []string, v string) []string {
	for _, cur := range list {
		if cur == v {
			return list
		}
	}
	return append(list, v)
}
