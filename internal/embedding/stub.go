package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// BagStub is a deterministic offline Service for tests. Each text becomes
// a bag-of-words vector: every lowercase token is hashed into one of a
// small number of buckets, so texts sharing tokens score high cosine and
// unrelated texts score near zero.
type BagStub struct {
	Dim int
}

// NewBagStub returns a stub with a 64-dimension vector space.
func NewBagStub() *BagStub { return &BagStub{Dim: 64} }

// Name returns "bag-stub".
func (s *BagStub) Name() string { return "bag-stub" }

// Embed hashes tokens into buckets.
func (s *BagStub) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := s.Dim
	if dim <= 0 {
		dim = 64
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, dim)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			tok = strings.Trim(tok, ".,;:!?\"'()[]")
			if tok == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(tok))
			v[h.Sum32()%uint32(dim)]++
		}
		out[i] = v
	}
	return out, nil
}
