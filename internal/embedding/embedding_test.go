package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/folioenrich/folioenrich/internal/ontology"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"dimension mismatch", []float32{1}, []float32{1, 2}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBagStubSimilarity(t *testing.T) {
	svc := NewBagStub()
	ctx := context.Background()

	same, err := Similarity(ctx, svc, "breach of contract", "breach of contract")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(same-1) > 1e-6 {
		t.Errorf("identical texts score %v, want 1", same)
	}

	related, err := Similarity(ctx, svc, "breach of contract claim", "the contract claim")
	if err != nil {
		t.Fatal(err)
	}
	unrelated, err := Similarity(ctx, svc, "breach of contract claim", "maritime salvage vessel")
	if err != nil {
		t.Fatal(err)
	}
	if related <= unrelated {
		t.Errorf("related %v not above unrelated %v", related, unrelated)
	}
}

func indexStore() *ontology.Store {
	return ontology.NewStore([]ontology.Class{
		{IRI: "folio:Contract", PreferredLabel: "contract agreement"},
		{IRI: "folio:Lease", PreferredLabel: "lease rental agreement"},
		{IRI: "folio:Vessel", PreferredLabel: "maritime vessel"},
		{IRI: "folio:Unlabeled"},
	}, nil)
}

func TestBuildIndexSkipsUnlabeled(t *testing.T) {
	ix, err := BuildIndex(context.Background(), NewBagStub(), indexStore())
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 3 {
		t.Errorf("Len = %d, want 3", ix.Len())
	}
}

func TestNearestRanksBySharedTokens(t *testing.T) {
	ix, err := BuildIndex(context.Background(), NewBagStub(), indexStore())
	if err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Nearest(context.Background(), "the rental agreement for the lease", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].IRI != "folio:Lease" {
		t.Errorf("top hit = %s, want folio:Lease (%+v)", hits[0].IRI, hits)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not ordered by score: %+v", hits)
	}
}

func TestNearestInRestrictsCandidates(t *testing.T) {
	ix, err := BuildIndex(context.Background(), NewBagStub(), indexStore())
	if err != nil {
		t.Fatal(err)
	}

	hits, err := ix.NearestIn(context.Background(), "rental agreement",
		[]string{"folio:Vessel", "folio:Contract", "folio:Nonexistent"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (unknown IRI ignored): %+v", len(hits), hits)
	}
	for _, h := range hits {
		if h.IRI == "folio:Lease" {
			t.Errorf("excluded IRI returned: %+v", hits)
		}
	}
}

func TestScoreUnindexedIsZero(t *testing.T) {
	ix, err := BuildIndex(context.Background(), NewBagStub(), indexStore())
	if err != nil {
		t.Fatal(err)
	}
	score, err := ix.Score(context.Background(), "anything", "folio:Nonexistent")
	if err != nil || score != 0 {
		t.Errorf("Score = %v, %v; want 0, nil", score, err)
	}

	score, err = ix.Score(context.Background(), "maritime vessel", "folio:Vessel")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(score-1) > 1e-6 {
		t.Errorf("exact label score = %v, want 1", score)
	}
}
