package individual

import (
	"sort"
	"strings"

	"github.com/folioenrich/folioenrich/internal/matching"
	"github.com/folioenrich/folioenrich/internal/model"
)

// Deduplicate merges individuals that agree on type, normalized surface
// form and span. The highest-confidence member of each group wins; the
// others fold their sources into it, and a winner missing a normalized
// form or URL inherits one from a merged loser. Output is ordered by
// (start, end, type).
func Deduplicate(individuals []*model.Individual) []*model.Individual {
	type groupKey struct {
		typ     model.IndividualType
		surface string
		span    model.Span
	}

	groups := make(map[groupKey][]*model.Individual)
	var order []groupKey
	for _, ind := range individuals {
		key := groupKey{ind.Type, matching.FoldCollapse(ind.SurfaceText), ind.Span}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ind)
	}

	out := make([]*model.Individual, 0, len(order))
	for _, key := range order {
		group := groups[key]
		winner := group[0]
		for _, ind := range group[1:] {
			if ind.Confidence > winner.Confidence {
				winner = ind
			}
		}
		for _, ind := range group {
			if ind == winner {
				continue
			}
			for _, src := range ind.Sources {
				winner.Sources = appendUniqueSource(winner.Sources, src)
			}
			if winner.NormalizedForm == "" {
				winner.NormalizedForm = ind.NormalizedForm
			}
			if winner.ResolvedURL == "" {
				winner.ResolvedURL = ind.ResolvedURL
			}
			winner.AppendLineage("individual_extraction", "merged", "", "",
				"absorbed "+strings.Join(ind.Sources, "+"))
		}
		out = append(out, winner)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End < b.Span.End
		}
		return a.Type < b.Type
	})
	return out
}

func appendUniqueSource(sources []string, src string) []string {
	for _, s := range sources {
		if s == src {
			return sources
		}
	}
	return append(sources, src)
}
