package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/folioenrich/folioenrich/internal/embedding"
	"github.com/folioenrich/folioenrich/internal/matching"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
)

const (
	// reconcileMaxBoost lifts agreed discoveries with a diminishing return:
	// high scores barely move, low scores get a meaningful lift.
	reconcileMaxBoost = 0.05

	// rulerOnlyMinConfidence filters ruler-only discoveries below this
	// score. Single-word alt-label matches (0.35) are mostly false
	// positives; preferred labels and multi-word matches pass.
	rulerOnlyMinConfidence = 0.60

	// triageMargin is the required gap between the top two triage scores
	// for auto-resolution.
	triageMargin = 0.05
)

// Reconciler merges the deterministic and language-model discovery arms
// into one set of discoveries with fused confidence and merged sources.
type Reconciler struct {
	acc       ontology.Accessor
	index     *embedding.Index
	threshold float64
}

// NewReconciler creates a reconciler. A nil index disables embedding
// triage; branch conflicts then fall back to definition word overlap and
// finally keep both arms.
func NewReconciler(acc ontology.Accessor, index *embedding.Index, threshold float64) *Reconciler {
	return &Reconciler{acc: acc, index: index, threshold: threshold}
}

// Reconcile groups both arms by normalized surface text and emits the
// unified discovery set. Surfaces found by both arms get agreement fusion
// or conflict triage; ruler-only surfaces pass a confidence floor;
// proposer-only surfaces pass through untouched.
func (r *Reconciler) Reconcile(ctx context.Context, doc *model.Document, rulerMatches, proposals []*model.ConceptMatch, res *model.JobResult) []*model.ConceptMatch {
	rulerByText := groupBySurface(rulerMatches)
	llmByText := groupBySurface(proposals)

	keys := make([]string, 0, len(rulerByText)+len(llmByText))
	seen := make(map[string]bool)
	for _, m := range append(append([]*model.ConceptMatch(nil), rulerMatches...), proposals...) {
		k := matching.FoldCollapse(m.SurfaceText)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []*model.ConceptMatch
	for _, key := range keys {
		fromRuler := rulerByText[key]
		fromLLM := llmByText[key]

		switch {
		case len(fromRuler) > 0 && len(fromLLM) > 0:
			out = append(out, r.reconcileShared(ctx, doc, key, fromRuler, fromLLM, res)...)

		case len(fromRuler) > 0:
			for _, m := range fromRuler {
				if m.Confidence < rulerOnlyMinConfidence {
					continue
				}
				m.AppendLineage("reconciler", "accepted", "", "", "ruler_only")
				out = append(out, m)
			}

		default:
			for _, m := range fromLLM {
				m.AppendLineage("reconciler", "accepted", "", "", "llm_only")
				out = append(out, m)
			}
		}
	}
	return out
}

// reconcileShared fuses one surface found by both arms.
func (r *Reconciler) reconcileShared(ctx context.Context, doc *model.Document, key string, fromRuler, fromLLM []*model.ConceptMatch, res *model.JobResult) []*model.ConceptMatch {
	proposal := best(fromLLM)
	hint := proposalBranch(proposal)

	// Agreement: some ruler candidate sits on the proposed branch, or the
	// proposal carries no usable hint. Only agreeing candidates take the
	// boost; same-surface candidates on other branches still survive.
	if hint == "" {
		return fuseAgreed(fromRuler, proposal)
	}
	var agreeing, others []*model.ConceptMatch
	for _, m := range fromRuler {
		if onBranch(m.Branches, hint) {
			agreeing = append(agreeing, m)
		} else {
			others = append(others, m)
		}
	}
	if len(agreeing) > 0 {
		out := fuseAgreed(agreeing, proposal)
		for _, m := range others {
			if m.Confidence < rulerOnlyMinConfidence {
				continue
			}
			m.AppendLineage("reconciler", "accepted", "", "", "ruler_only")
			out = append(out, m)
		}
		return out
	}

	// Branch conflict: triage against the sentence around the first
	// occurrence.
	first := fromRuler[0]
	window := doc.ContextWindow(first.Span.Start, 0, 0)
	if winner := r.triage(ctx, window, fromRuler); winner != nil {
		res.LogActivity("reconciler", "triage resolved branch conflict for "+key)
		return fuseAgreed([]*model.ConceptMatch{winner}, proposal)
	}

	// Keep both arms; the reranker arbitrates.
	var out []*model.ConceptMatch
	for _, m := range fromRuler {
		if m.Confidence < rulerOnlyMinConfidence {
			continue
		}
		m.AppendLineage("reconciler", "accepted", "", "", "conflict_kept_both")
		out = append(out, m)
	}
	proposal.AppendLineage("reconciler", "accepted", "", "", "conflict_kept_both")
	res.AddQualitySignal("reconciler", "unresolved branch conflict: "+key)
	return append(out, proposal)
}

// fuseAgreed merges the proposal into the ruler candidates.
func fuseAgreed(fromRuler []*model.ConceptMatch, proposal *model.ConceptMatch) []*model.ConceptMatch {
	out := make([]*model.ConceptMatch, 0, len(fromRuler))
	for _, m := range fromRuler {
		base := m.Confidence
		if proposal.Confidence > base {
			base = proposal.Confidence
		}
		fused := base + reconcileMaxBoost*(1.0-base)
		if fused > 1.0 {
			fused = 1.0
		}
		m.AddSource(model.SourceLLM)
		m.SetConfidence("reconciler", fused, "both_agree")
		out = append(out, m)
	}
	return out
}

// triage scores each candidate concept against the context window and
// returns the argmax when it clears the threshold with enough margin.
func (r *Reconciler) triage(ctx context.Context, window string, candidates []*model.ConceptMatch) *model.ConceptMatch {
	if r.index != nil {
		iris := make([]string, 0, len(candidates))
		for _, m := range candidates {
			iris = append(iris, m.ConceptIRI)
		}
		hits, err := r.index.NearestIn(ctx, window, iris, 2)
		if err == nil && len(hits) > 0 {
			top := hits[0]
			margin := top.Score
			if len(hits) > 1 {
				margin = top.Score - hits[1].Score
			}
			if top.Score >= r.threshold && margin >= triageMargin {
				for _, m := range candidates {
					if m.ConceptIRI == top.IRI {
						return m
					}
				}
			}
		}
		return nil
	}

	// Offline fallback: definition word overlap against the context.
	var bestMatch *model.ConceptMatch
	var bestScore, second float64
	for _, m := range candidates {
		c, err := r.acc.GetClass(m.ConceptIRI)
		if err != nil {
			continue
		}
		s := definitionOverlap(window, c.Definition)
		if s > bestScore {
			second = bestScore
			bestScore = s
			bestMatch = m
		} else if s > second {
			second = s
		}
	}
	if bestMatch != nil && bestScore-second >= 0.1 && bestScore > 0 {
		return bestMatch
	}
	return nil
}

var overlapStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true, "in": true,
	"for": true, "and": true, "or": true, "is": true, "on": true,
	"at": true, "by": true, "with": true,
}

// definitionOverlap is a cheap lexical proxy for semantic similarity.
func definitionOverlap(context, definition string) float64 {
	if context == "" || definition == "" {
		return 0
	}
	ctx := contentWords(context)
	def := contentWords(definition)
	if len(ctx) == 0 || len(def) == 0 {
		return 0
	}
	shared := 0
	for w := range ctx {
		if def[w] {
			shared++
		}
	}
	denom := len(ctx)
	if len(def) > denom {
		denom = len(def)
	}
	return float64(shared) / float64(denom)
}

func contentWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if !overlapStopwords[w] {
			out[w] = true
		}
	}
	return out
}

func groupBySurface(matches []*model.ConceptMatch) map[string][]*model.ConceptMatch {
	out := make(map[string][]*model.ConceptMatch)
	for _, m := range matches {
		k := matching.FoldCollapse(m.SurfaceText)
		out[k] = append(out[k], m)
	}
	return out
}

func best(matches []*model.ConceptMatch) *model.ConceptMatch {
	winner := matches[0]
	for _, m := range matches[1:] {
		if m.Confidence > winner.Confidence {
			winner = m
		}
	}
	return winner
}

// proposalBranch reads the proposer's branch hint off the annotation.
func proposalBranch(m *model.ConceptMatch) string {
	if len(m.Branches) == 0 {
		return ""
	}
	return m.Branches[0]
}

func onBranch(branches []string, hint string) bool {
	for _, b := range branches {
		if strings.EqualFold(b, hint) {
			return true
		}
	}
	return false
}
