package pipeline

import (
	"context"
	"fmt"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/worker"
)

const (
	rerankPriorWeight   = 0.5
	rerankContextWeight = 0.5

	// rerankRejectBelow rejects annotations whose blended score falls
	// under this floor. Rejection keeps the annotation visible with its
	// lineage instead of silently dropping it.
	rerankRejectBelow = 0.30
)

// Reranker asks a language model to score each annotation against its
// sentence context and blends the verdict into the prior confidence.
type Reranker struct {
	provider llm.Provider
	budget   llm.Budget
	limiter  *worker.Limiter
	workers  int
}

// NewReranker creates a reranker. A nil provider turns Rerank into a
// no-op; the orchestrator records the degradation.
func NewReranker(provider llm.Provider, budget llm.Budget, limiter *worker.Limiter, workers int) *Reranker {
	return &Reranker{provider: provider, budget: budget, limiter: limiter, workers: workers}
}

// Rerank scores all live annotations concurrently. Per-annotation
// failures degrade that annotation only; the rest of the batch proceeds.
func (r *Reranker) Rerank(ctx context.Context, doc *model.Document, matches []*model.ConceptMatch, res *model.JobResult) error {
	if r.provider == nil {
		return nil
	}

	live := liveMatches(matches)
	if len(live) == 0 {
		return nil
	}

	errs := worker.RunIndexed(ctx, r.workers, len(live), func(ctx context.Context, i int) error {
		return r.rerankOne(ctx, doc, live[i])
	})
	for i, err := range errs {
		if err == nil {
			continue
		}
		res.AddQualitySignal("reranker", fmt.Sprintf("rerank failed for %s: %v", live[i].SurfaceText, err))
	}
	return nil
}

func (r *Reranker) rerankOne(ctx context.Context, doc *model.Document, m *model.ConceptMatch) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, "rerank"); err != nil {
			return fmt.Errorf("rerank limiter: %w", err)
		}
	}

	window := doc.ContextWindow(m.Span.Start, 1, 1)
	prompt := llm.BuildRerankPrompt(m.SurfaceText, m.PreferredLabel, m.Definition, window)

	var resp llm.RerankResponse
	if err := llm.StructuredInto(ctx, r.provider, prompt, llm.RerankSchema, r.budget, &resp); err != nil {
		return err
	}

	score := anchorScore(resp.ContextScore)
	blended := rerankPriorWeight*m.Confidence + rerankContextWeight*score
	m.SetConfidence("reranker", blended, fmt.Sprintf("context_score=%s", model.FormatConfidence(score)))

	if blended < rerankRejectBelow {
		m.State = model.StateRejected
		m.AppendLineage("reranker", "rejected", "", "", "low_context_fit")
	}
	return nil
}

// anchorScore clamps a context score into [0, 1]. The prompt anchors the
// scale at 0.95 (exact usage), 0.70 (plausible), 0.40 (strained) and
// 0.20 (wrong sense); anything outside the unit interval is model drift.
func anchorScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func liveMatches(matches []*model.ConceptMatch) []*model.ConceptMatch {
	out := make([]*model.ConceptMatch, 0, len(matches))
	for _, m := range matches {
		if m.State != model.StateRejected {
			out = append(out, m)
		}
	}
	return out
}
