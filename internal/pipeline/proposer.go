package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/matching"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/worker"
)

const (
	proposalConfidenceFloor = 0.1
	proposalConfidenceCeil  = 0.99
)

// Proposer is the language-model discovery arm. It runs the concept
// prompt over every chunk concurrently and turns validated proposals
// into located annotations.
type Proposer struct {
	provider llm.Provider
	budget   llm.Budget
	limiter  *worker.Limiter
	branches []string
	workers  int
}

// NewProposer creates a proposer for the given ontology branch list.
func NewProposer(provider llm.Provider, budget llm.Budget, limiter *worker.Limiter, branches []string, workers int) *Proposer {
	return &Proposer{provider: provider, budget: budget, limiter: limiter, branches: branches, workers: workers}
}

// Propose runs all chunks and merges their proposals. Chunk failures are
// reported as quality signals; the surviving chunks still contribute.
func (p *Proposer) Propose(ctx context.Context, doc *model.Document, res *model.JobResult) []*model.ConceptMatch {
	if p.provider == nil || len(doc.Chunks) == 0 {
		return nil
	}

	perChunk := make([][]*model.ConceptMatch, len(doc.Chunks))
	var mu sync.Mutex

	errs := worker.RunIndexed(ctx, p.workers, len(doc.Chunks), func(ctx context.Context, i int) error {
		out, err := p.proposeChunk(ctx, doc, doc.Chunks[i])
		if err != nil {
			return err
		}
		mu.Lock()
		perChunk[i] = out
		mu.Unlock()
		return nil
	})
	for i, err := range errs {
		if err == nil {
			continue
		}
		res.AddQualitySignal("proposer", fmt.Sprintf("chunk %d proposal failed: %v", i, err))
	}

	// Overlapping chunks can surface the same occurrence twice; keep one.
	seen := make(map[string]bool)
	var out []*model.ConceptMatch
	for _, chunkOut := range perChunk {
		for _, m := range chunkOut {
			k := fmt.Sprintf("%d:%d:%s", m.Span.Start, m.Span.End, matching.FoldCollapse(m.SurfaceText))
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Span.Start < out[j].Span.Start })
	return out
}

func (p *Proposer) proposeChunk(ctx context.Context, doc *model.Document, chunk model.Chunk) ([]*model.ConceptMatch, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, "concept"); err != nil {
			return nil, fmt.Errorf("concept limiter: %w", err)
		}
	}

	text := doc.Text[chunk.Start:chunk.End]
	prompt := llm.BuildConceptPrompt(text, p.branches)

	var resp llm.ConceptResponse
	if err := llm.StructuredInto(ctx, p.provider, prompt, llm.ConceptSchema, p.budget, &resp); err != nil {
		return nil, err
	}

	var out []*model.ConceptMatch
	for _, c := range resp.Concepts {
		surface := strings.TrimSpace(c.ConceptText)
		if surface == "" {
			continue
		}
		// Proposals must quote the chunk verbatim; anything the model
		// paraphrased cannot be located and is discarded.
		idx := strings.Index(text, surface)
		if idx < 0 {
			continue
		}
		span := model.Span{Start: chunk.Start + idx, End: chunk.Start + idx + len(surface)}

		conf := c.Confidence
		if conf < proposalConfidenceFloor {
			conf = proposalConfidenceFloor
		}
		if conf > proposalConfidenceCeil {
			conf = proposalConfidenceCeil
		}

		m := model.NewConceptMatch(span, surface, model.MatchLLM, conf, model.SourceLLM, "proposer")
		if hint := strings.TrimSpace(c.BranchHint); hint != "" {
			m.Branches = []string{hint}
		}
		out = append(out, m)
	}
	return out, nil
}
