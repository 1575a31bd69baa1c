package matching

import (
	"reflect"
	"testing"
)

func TestScanFindsCaseInsensitiveMatches(t *testing.T) {
	a := NewAutomaton(true)
	a.Add("breach of contract", "folio:BreachOfContract", nil)
	a.Add("contract", "folio:Contract", nil)

	text := "The claim alleges Breach of Contract against the seller."
	matches := a.Scan(text)

	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2: %+v", len(matches), matches)
	}
	if matches[0].Key != "folio:BreachOfContract" {
		t.Errorf("first key = %q, want folio:BreachOfContract", matches[0].Key)
	}
	if got := text[matches[0].Start:matches[0].End]; got != "Breach of Contract" {
		t.Errorf("surface = %q, want %q", got, "Breach of Contract")
	}
	// Nested "Contract" survives containment.
	if matches[1].Key != "folio:Contract" {
		t.Errorf("second key = %q, want folio:Contract", matches[1].Key)
	}
}

func TestScanRespectsWordBoundaries(t *testing.T) {
	a := NewAutomaton(true)
	a.Add("tort", "folio:Tort", nil)

	if got := a.Scan("The tortoise won."); len(got) != 0 {
		t.Errorf("matched inside a longer word: %+v", got)
	}
	if got := a.Scan("A tort was committed."); len(got) != 1 {
		t.Errorf("missed a bounded occurrence: %+v", got)
	}
	// Punctuation is a boundary.
	if got := a.Scan("liability (tort)."); len(got) != 1 {
		t.Errorf("missed a parenthesized occurrence: %+v", got)
	}
}

func TestHyphenBoundaryPolicy(t *testing.T) {
	text := "A quasi-contract theory."

	asWord := NewAutomaton(true)
	asWord.Add("contract", "folio:Contract", nil)
	if got := asWord.Scan(text); len(got) != 0 {
		t.Errorf("hyphenAsWord=true matched across a hyphen: %+v", got)
	}

	asBoundary := NewAutomaton(false)
	asBoundary.Add("contract", "folio:Contract", nil)
	if got := asBoundary.Scan(text); len(got) != 1 {
		t.Errorf("hyphenAsWord=false missed the hyphen-adjacent match: %+v", got)
	}
}

func TestScanIdenticalSpansDistinctKeys(t *testing.T) {
	a := NewAutomaton(true)
	a.Add("security", "folio:Security", nil)
	a.Add("security", "folio:SecurityInterest", nil)

	matches := a.Scan("The security was pledged.")
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2 (one per key): %+v", len(matches), matches)
	}
	if matches[0].Start != matches[1].Start || matches[0].End != matches[1].End {
		t.Errorf("spans differ: %+v", matches)
	}
	if matches[0].Key == matches[1].Key {
		t.Errorf("duplicate key survived: %+v", matches)
	}
}

func TestScanDuplicatePatternCollapses(t *testing.T) {
	a := NewAutomaton(true)
	a.Add("Contract", "folio:Contract", nil)
	a.Add("CONTRACT", "folio:Contract", nil)

	if got := a.Scan("One contract only."); len(got) != 1 {
		t.Errorf("same-key duplicates not collapsed: %+v", got)
	}
}

func TestScanUnicodeOffsets(t *testing.T) {
	a := NewAutomaton(true)
	a.Add("café", "k1", nil)

	text := "Meet at the café tomorrow."
	matches := a.Scan(text)
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if got := text[matches[0].Start:matches[0].End]; got != "café" {
		t.Errorf("surface = %q, want café", got)
	}
}

func TestResolveOverlapsPartialKeepsLonger(t *testing.T) {
	in := []Match{
		{Start: 0, End: 10, Key: "a"},
		{Start: 5, End: 20, Key: "b"},
	}
	out := ResolveOverlaps(in)
	if len(out) != 1 || out[0].Key != "b" {
		t.Errorf("got %+v, want only the longer span b", out)
	}
}

func TestResolveOverlapsContainmentKeepsBoth(t *testing.T) {
	in := []Match{
		{Start: 5, End: 8, Key: "inner"},
		{Start: 0, End: 20, Key: "outer"},
	}
	out := ResolveOverlaps(in)
	if len(out) != 2 {
		t.Fatalf("got %+v, want both", out)
	}
	if out[0].Key != "outer" || out[1].Key != "inner" {
		t.Errorf("order = %+v, want outer then inner", out)
	}
}

func TestFoldCollapse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Breach  of\tContract", "breach of contract"},
		{"  CONTRACT  ", "contract"},
		{"ﬁling", "filing"}, // ligature decomposes under NFKC
	}
	for _, tt := range tests {
		if got := FoldCollapse(tt.in); got != tt.want {
			t.Errorf("FoldCollapse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsMultiWord(t *testing.T) {
	if !IsMultiWord("breach of contract") {
		t.Error("multi-word label not detected")
	}
	if IsMultiWord("contract") {
		t.Error("single word misclassified")
	}
}

func TestScanEmptyInputs(t *testing.T) {
	a := NewAutomaton(true)
	if got := a.Scan("anything"); got != nil {
		t.Errorf("empty automaton matched: %+v", got)
	}
	a.Add("", "ignored", nil)
	if a.Len() != 0 {
		t.Errorf("empty pattern registered, Len = %d", a.Len())
	}
	a.Add("x", "k", nil)
	if got := a.Scan(""); got != nil {
		t.Errorf("scan of empty text matched: %+v", got)
	}
}

func TestScanRawOrderIsDocumentOrder(t *testing.T) {
	a := NewAutomaton(true)
	a.Add("lease", "folio:Lease", nil)
	a.Add("deed", "folio:Deed", nil)

	matches := a.Scan("The deed and the lease were recorded.")
	want := []string{"folio:Deed", "folio:Lease"}
	var got []string
	for _, m := range matches {
		got = append(got, m.Key)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
}
