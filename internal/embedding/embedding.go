// Package embedding provides the vector similarity layer: a provider
// interface, an OpenAI-compatible implementation with layered caching, and
// an in-memory index over ontology class labels for semantic ranking and
// conflict triage.
package embedding

import (
	"context"
	"encoding/json"
	"math"
)

// Service embeds texts into vectors. Implementations must return one
// vector per input, in order.
type Service interface {
	// Name returns the service name for logs and quality signals.
	Name() string

	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// zero or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Similarity embeds both texts and returns their cosine similarity.
func Similarity(ctx context.Context, svc Service, a, b string) (float64, error) {
	vecs, err := svc.Embed(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	return Cosine(vecs[0], vecs[1]), nil
}

func encodeVector(v []float32) ([]byte, error) {
	return json.Marshal(v)
}

func decodeVector(data []byte) ([]float32, error) {
	var v []float32
	err := json.Unmarshal(data, &v)
	return v, err
}
