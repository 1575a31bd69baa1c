package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/worker"
)

const (
	branchPriorWeight = 0.7
	branchJudgeWeight = 0.3
)

// BranchJudge disambiguates annotations whose concept belongs to more
// than one ontology branch. Single-branch annotations are never touched.
type BranchJudge struct {
	provider llm.Provider
	budget   llm.Budget
	limiter  *worker.Limiter
	workers  int
}

// NewBranchJudge creates a branch judge; nil provider makes Judge a
// no-op.
func NewBranchJudge(provider llm.Provider, budget llm.Budget, limiter *worker.Limiter, workers int) *BranchJudge {
	return &BranchJudge{provider: provider, budget: budget, limiter: limiter, workers: workers}
}

// Judge runs branch disambiguation over all live multi-branch
// annotations.
func (b *BranchJudge) Judge(ctx context.Context, doc *model.Document, matches []*model.ConceptMatch, res *model.JobResult) error {
	if b.provider == nil {
		return nil
	}

	var targets []*model.ConceptMatch
	for _, m := range liveMatches(matches) {
		if len(m.Branches) >= 2 {
			targets = append(targets, m)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	errs := worker.RunIndexed(ctx, b.workers, len(targets), func(ctx context.Context, i int) error {
		return b.judgeOne(ctx, doc, targets[i], res)
	})
	for i, err := range errs {
		if err == nil {
			continue
		}
		res.AddQualitySignal("branch_judge", fmt.Sprintf("branch judgment failed for %s: %v", targets[i].SurfaceText, err))
	}
	return nil
}

func (b *BranchJudge) judgeOne(ctx context.Context, doc *model.Document, m *model.ConceptMatch, res *model.JobResult) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, "branch_judge"); err != nil {
			return fmt.Errorf("branch judge limiter: %w", err)
		}
	}

	sent := doc.SentenceAt(m.Span.Start)
	prompt := llm.BuildBranchJudgePrompt(m.SurfaceText, doc.Text[sent.Start:sent.End], m.Branches)

	var resp llm.BranchJudgeResponse
	if err := llm.StructuredInto(ctx, b.provider, prompt, llm.BranchJudgeSchema, b.budget, &resp); err != nil {
		return err
	}

	chosen := ""
	for _, br := range m.Branches {
		if strings.EqualFold(br, resp.Branch) {
			chosen = br
			break
		}
	}
	if chosen == "" {
		res.AddQualitySignal("branch_judge", fmt.Sprintf("judge named unknown branch %q for %s", resp.Branch, m.SurfaceText))
		return nil
	}

	before := strings.Join(m.Branches, ",")
	var losers []string
	for _, br := range m.Branches {
		if br != chosen {
			losers = append(losers, br)
		}
	}
	m.Branches = []string{chosen}
	m.BackupBranches = losers
	m.AppendLineage("branch_judge", "branch_chosen", before, chosen, resp.Reasoning)

	// Blend only when the judge returned a usable score; an absent or
	// out-of-range score narrows the branch set without touching
	// confidence.
	if resp.Confidence > 0 && resp.Confidence <= 1 {
		blended := branchPriorWeight*m.Confidence + branchJudgeWeight*resp.Confidence
		m.SetConfidence("branch_judge", blended, "branch_judged")
	}
	return nil
}
