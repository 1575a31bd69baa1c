package embedding

import (
	"context"
	"sort"

	"github.com/folioenrich/folioenrich/internal/ontology"
)

// Scored is one index hit.
type Scored struct {
	IRI   string
	Label string
	Score float64
}

// Index holds one vector per ontology class, embedded from its preferred
// label. Lookups embed the query and rank by cosine similarity.
type Index struct {
	svc     Service
	iris    []string
	labels  []string
	vectors [][]float32
	byIRI   map[string]int
}

const indexBatchSize = 64

// BuildIndex embeds every class label in batches. Classes arrive in
// sorted IRI order, so the index layout is deterministic.
func BuildIndex(ctx context.Context, svc Service, acc ontology.Accessor) (*Index, error) {
	ix := &Index{svc: svc, byIRI: make(map[string]int)}
	acc.IterateClasses(func(c ontology.Class) bool {
		if c.PreferredLabel == "" {
			return true
		}
		ix.byIRI[c.IRI] = len(ix.iris)
		ix.iris = append(ix.iris, c.IRI)
		ix.labels = append(ix.labels, c.PreferredLabel)
		return true
	})

	ix.vectors = make([][]float32, len(ix.labels))
	for start := 0; start < len(ix.labels); start += indexBatchSize {
		end := start + indexBatchSize
		if end > len(ix.labels) {
			end = len(ix.labels)
		}
		vecs, err := svc.Embed(ctx, ix.labels[start:end])
		if err != nil {
			return nil, err
		}
		copy(ix.vectors[start:end], vecs)
	}
	return ix, nil
}

// Len returns the number of indexed classes.
func (ix *Index) Len() int { return len(ix.iris) }

// Nearest returns the k most similar classes to text, best first. Ties
// break on IRI so results are stable.
func (ix *Index) Nearest(ctx context.Context, text string, k int) ([]Scored, error) {
	return ix.nearest(ctx, text, k, nil)
}

// NearestIn restricts the search to the given IRIs. Unknown IRIs are
// ignored.
func (ix *Index) NearestIn(ctx context.Context, text string, iris []string, k int) ([]Scored, error) {
	allowed := make(map[string]bool, len(iris))
	for _, iri := range iris {
		allowed[iri] = true
	}
	return ix.nearest(ctx, text, k, allowed)
}

func (ix *Index) nearest(ctx context.Context, text string, k int, allowed map[string]bool) ([]Scored, error) {
	vecs, err := ix.svc.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	query := vecs[0]

	hits := make([]Scored, 0, len(ix.iris))
	for i, iri := range ix.iris {
		if allowed != nil && !allowed[iri] {
			continue
		}
		hits = append(hits, Scored{
			IRI:   iri,
			Label: ix.labels[i],
			Score: Cosine(query, ix.vectors[i]),
		})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].IRI < hits[b].IRI
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Score returns the similarity between text and one indexed class, or 0
// when the class is not indexed.
func (ix *Index) Score(ctx context.Context, text, iri string) (float64, error) {
	i, ok := ix.byIRI[iri]
	if !ok {
		return 0, nil
	}
	vecs, err := ix.svc.Embed(ctx, []string{text})
	if err != nil {
		return 0, err
	}
	return Cosine(vecs[0], ix.vectors[i]), nil
}
