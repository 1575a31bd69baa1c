package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/folioenrich/folioenrich/internal/ingest"
	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
	"github.com/folioenrich/folioenrich/internal/ruler"
)

func testStore() *ontology.Store {
	return ontology.NewStore([]ontology.Class{
		{
			IRI:            "folio:BreachOfContract",
			PreferredLabel: "Breach of Contract",
			Branches:       []string{"Legal Concepts"},
			Definition:     "Failure to perform a contractual obligation.",
		},
		{
			IRI:            "folio:Contract",
			PreferredLabel: "Contract",
			AltLabels:      []string{"Agreement"},
			Branches:       []string{"Legal Concepts"},
			Definition:     "A legally enforceable promise.",
		},
		{
			IRI:            "folio:Security",
			PreferredLabel: "Security",
			Branches:       []string{"Financial Instruments"},
			Definition:     "A tradable financial asset such as a stock or bond.",
		},
		{
			IRI:            "folio:SecurityInterest",
			PreferredLabel: "Security",
			Branches:       []string{"Property Law"},
			Definition:     "A lien or charge over collateral securing an obligation.",
		},
	}, nil)
}

func testDoc(t *testing.T, text string) *model.Document {
	t.Helper()
	doc, err := ingest.Normalize([]byte(text), model.FormatPlainText, model.DefaultConfig())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return doc
}

func TestReconcileAgreementBoostsConfidence(t *testing.T) {
	doc := testDoc(t, "The plaintiff alleges breach of contract damages.")
	rulerMatch := model.NewConceptMatch(model.Span{Start: 22, End: 40}, "breach of contract",
		model.MatchPreferredLabel, 0.90, model.SourceRuler, "ruler")
	rulerMatch.ConceptIRI = "folio:BreachOfContract"
	rulerMatch.Branches = []string{"Legal Concepts"}

	proposal := model.NewConceptMatch(model.Span{Start: 22, End: 40}, "breach of contract",
		model.MatchLLM, 0.85, model.SourceLLM, "proposer")
	proposal.Branches = []string{"Legal Concepts"}

	res := &model.JobResult{}
	rec := NewReconciler(testStore(), nil, 0.80)
	out := rec.Reconcile(context.Background(), doc,
		[]*model.ConceptMatch{rulerMatch}, []*model.ConceptMatch{proposal}, res)

	if len(out) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(out))
	}
	want := 0.90 + 0.05*(1.0-0.90)
	if math.Abs(out[0].Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", out[0].Confidence, want)
	}
	if !out[0].HasSource(model.SourceLLM) || !out[0].HasSource(model.SourceRuler) {
		t.Errorf("sources = %v", out[0].Sources)
	}
}

func TestReconcileRulerOnlyConfidenceFloor(t *testing.T) {
	doc := testDoc(t, "An agreement was signed under the contract.")
	weak := model.NewConceptMatch(model.Span{Start: 3, End: 12}, "agreement",
		model.MatchAltLabel, ruler.ConfSingleWordAlt, model.SourceRuler, "ruler")
	weak.ConceptIRI = "folio:Contract"
	strong := model.NewConceptMatch(model.Span{Start: 34, End: 42}, "contract",
		model.MatchPreferredLabel, ruler.ConfSingleWordPreferred, model.SourceRuler, "ruler")
	strong.ConceptIRI = "folio:Contract"

	res := &model.JobResult{}
	rec := NewReconciler(testStore(), nil, 0.80)
	out := rec.Reconcile(context.Background(), doc,
		[]*model.ConceptMatch{weak, strong}, nil, res)

	if len(out) != 1 {
		t.Fatalf("expected 1 annotation, got %d: %+v", len(out), out)
	}
	if out[0].SurfaceText != "contract" {
		t.Errorf("survivor = %q", out[0].SurfaceText)
	}
}

func TestReconcileProposerOnlySurvives(t *testing.T) {
	doc := testDoc(t, "The court granted equitable estoppel relief.")
	proposal := model.NewConceptMatch(model.Span{Start: 18, End: 36}, "equitable estoppel",
		model.MatchLLM, 0.6, model.SourceLLM, "proposer")

	res := &model.JobResult{}
	rec := NewReconciler(testStore(), nil, 0.80)
	out := rec.Reconcile(context.Background(), doc, nil, []*model.ConceptMatch{proposal}, res)

	if len(out) != 1 || out[0].SurfaceText != "equitable estoppel" {
		t.Fatalf("out = %+v", out)
	}
}

func TestReconcileBranchConflictDefinitionTiebreak(t *testing.T) {
	text := "The lender perfected its security over the collateral and the lien attached."
	doc := testDoc(t, text)
	start := strings.Index(text, "security")
	span := model.Span{Start: start, End: start + len("security")}

	finance := model.NewConceptMatch(span, "security", model.MatchPreferredLabel, 0.72, model.SourceRuler, "ruler")
	finance.ConceptIRI = "folio:Security"
	finance.Branches = []string{"Financial Instruments"}
	property := model.NewConceptMatch(span, "security", model.MatchPreferredLabel, 0.72, model.SourceRuler, "ruler")
	property.ConceptIRI = "folio:SecurityInterest"
	property.Branches = []string{"Property Law"}

	proposal := model.NewConceptMatch(span, "security", model.MatchLLM, 0.8, model.SourceLLM, "proposer")
	proposal.Branches = []string{"Property Law"}

	res := &model.JobResult{}
	rec := NewReconciler(testStore(), nil, 0.80)
	out := rec.Reconcile(context.Background(), doc,
		[]*model.ConceptMatch{finance, property}, []*model.ConceptMatch{proposal}, res)

	// The proposal agrees with the property-law candidate's branch, so
	// only that candidate is fused; no conflict survives.
	if len(out) != 2 {
		t.Fatalf("expected both same-span candidates, got %d: %+v", len(out), out)
	}
	var fused *model.ConceptMatch
	for _, m := range out {
		if m.ConceptIRI == "folio:SecurityInterest" {
			fused = m
		}
	}
	if fused == nil {
		t.Fatal("property-law candidate missing")
	}
	if !fused.HasSource(model.SourceLLM) {
		t.Errorf("fused sources = %v", fused.Sources)
	}
}

func TestReconcileConflictTriagedByDefinitionOverlap(t *testing.T) {
	text := "The lender perfected its security over the collateral and the lien attached."
	doc := testDoc(t, text)
	start := strings.Index(text, "security")
	span := model.Span{Start: start, End: start + len("security")}

	finance := model.NewConceptMatch(span, "security", model.MatchPreferredLabel, 0.72, model.SourceRuler, "ruler")
	finance.ConceptIRI = "folio:Security"
	finance.Branches = []string{"Financial Instruments"}
	property := model.NewConceptMatch(span, "security", model.MatchPreferredLabel, 0.72, model.SourceRuler, "ruler")
	property.ConceptIRI = "folio:SecurityInterest"
	property.Branches = []string{"Property Law"}

	// The hint matches neither candidate, forcing triage.
	proposal := model.NewConceptMatch(span, "security", model.MatchLLM, 0.8, model.SourceLLM, "proposer")
	proposal.Branches = []string{"Maritime Law"}

	res := &model.JobResult{}
	rec := NewReconciler(testStore(), nil, 0.80)
	out := rec.Reconcile(context.Background(), doc,
		[]*model.ConceptMatch{finance, property}, []*model.ConceptMatch{proposal}, res)

	if len(out) != 1 {
		t.Fatalf("expected triage winner only, got %d: %+v", len(out), out)
	}
	if out[0].ConceptIRI != "folio:SecurityInterest" {
		t.Errorf("winner = %s", out[0].ConceptIRI)
	}
}

func TestReconcileConflictKeepsBothWhenInconclusive(t *testing.T) {
	text := "Security matters here today."
	doc := testDoc(t, text)
	span := model.Span{Start: 0, End: 8}

	finance := model.NewConceptMatch(span, "Security", model.MatchPreferredLabel, 0.72, model.SourceRuler, "ruler")
	finance.ConceptIRI = "folio:Security"
	finance.Branches = []string{"Financial Instruments"}
	property := model.NewConceptMatch(span, "Security", model.MatchPreferredLabel, 0.72, model.SourceRuler, "ruler")
	property.ConceptIRI = "folio:SecurityInterest"
	property.Branches = []string{"Property Law"}

	proposal := model.NewConceptMatch(span, "Security", model.MatchLLM, 0.8, model.SourceLLM, "proposer")
	proposal.Branches = []string{"Maritime Law"}

	res := &model.JobResult{}
	rec := NewReconciler(testStore(), nil, 0.80)
	out := rec.Reconcile(context.Background(), doc,
		[]*model.ConceptMatch{finance, property}, []*model.ConceptMatch{proposal}, res)

	if len(out) != 3 {
		t.Fatalf("expected both candidates plus proposal, got %d: %+v", len(out), out)
	}
	if len(res.QualitySignals) != 1 {
		t.Errorf("quality signals = %+v", res.QualitySignals)
	}
}

func TestResolverRejectsUnknownIRI(t *testing.T) {
	m := model.NewConceptMatch(model.Span{Start: 0, End: 8}, "contract",
		model.MatchPreferredLabel, 0.72, model.SourceRuler, "ruler")
	m.ConceptIRI = "folio:DoesNotExist"

	res := &model.JobResult{}
	NewResolver(testStore(), nil).Resolve(context.Background(), []*model.ConceptMatch{m}, res)

	if m.State != model.StateRejected {
		t.Errorf("state = %s, want rejected", m.State)
	}
	if len(res.QualitySignals) != 1 {
		t.Fatalf("quality signals = %+v", res.QualitySignals)
	}
	found := false
	for _, e := range m.Lineage {
		if e.Reason == "unresolved_iri" {
			found = true
		}
	}
	if !found {
		t.Errorf("lineage lacks unresolved_iri: %+v", m.Lineage)
	}
}

func TestResolverRanksSurfaceToPreferredLabel(t *testing.T) {
	m := model.NewConceptMatch(model.Span{Start: 0, End: 8}, "Contract",
		model.MatchLLM, 0.7, model.SourceLLM, "proposer")

	res := &model.JobResult{}
	NewResolver(testStore(), nil).Resolve(context.Background(), []*model.ConceptMatch{m}, res)

	if m.State == model.StateRejected {
		t.Fatalf("rejected: %+v", m.Lineage)
	}
	if m.ConceptIRI != "folio:Contract" {
		t.Errorf("iri = %s", m.ConceptIRI)
	}
	if m.PreferredLabel != "Contract" || m.Definition == "" {
		t.Errorf("label = %q definition = %q", m.PreferredLabel, m.Definition)
	}
}

func TestResolverAltLabelSurface(t *testing.T) {
	m := model.NewConceptMatch(model.Span{Start: 0, End: 9}, "agreement",
		model.MatchLLM, 0.7, model.SourceLLM, "proposer")

	res := &model.JobResult{}
	NewResolver(testStore(), nil).Resolve(context.Background(), []*model.ConceptMatch{m}, res)

	if m.ConceptIRI != "folio:Contract" {
		t.Errorf("iri = %s", m.ConceptIRI)
	}
}

func TestRerankBlendsPriorAndContext(t *testing.T) {
	doc := testDoc(t, "The parties signed a contract. It was later breached.")
	m := model.NewConceptMatch(model.Span{Start: 21, End: 29}, "contract",
		model.MatchPreferredLabel, 0.6, model.SourceRuler, "ruler")
	m.ConceptIRI = "folio:Contract"
	m.PreferredLabel = "Contract"

	stub := llm.NewStub()
	stub.Respond("Score how well", `{"contextual_score":0.9}`)

	res := &model.JobResult{}
	rr := NewReranker(stub, llm.Budget{}, nil, 2)
	if err := rr.Rerank(context.Background(), doc, []*model.ConceptMatch{m}, res); err != nil {
		t.Fatalf("rerank: %v", err)
	}

	want := 0.5*0.6 + 0.5*0.9
	if math.Abs(m.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", m.Confidence, want)
	}
	if m.State == model.StateRejected {
		t.Error("should not be rejected")
	}
}

func TestRerankRejectsLowBlend(t *testing.T) {
	doc := testDoc(t, "The parties signed a contract.")
	m := model.NewConceptMatch(model.Span{Start: 21, End: 29}, "contract",
		model.MatchPreferredLabel, 0.35, model.SourceRuler, "ruler")
	m.ConceptIRI = "folio:Contract"

	stub := llm.NewStub()
	stub.Respond("Score how well", `{"contextual_score":0.2}`)

	res := &model.JobResult{}
	rr := NewReranker(stub, llm.Budget{}, nil, 2)
	if err := rr.Rerank(context.Background(), doc, []*model.ConceptMatch{m}, res); err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if m.State != model.StateRejected {
		t.Errorf("state = %s, want rejected (confidence %v)", m.State, m.Confidence)
	}
}

func TestBranchJudgeChoosesAndBlends(t *testing.T) {
	doc := testDoc(t, "The lender perfected its security over the collateral.")
	m := model.NewConceptMatch(model.Span{Start: 25, End: 33}, "security",
		model.MatchPreferredLabel, 0.6, model.SourceRuler, "ruler")
	m.ConceptIRI = "folio:SecurityInterest"
	m.Branches = []string{"Financial Instruments", "Property Law"}

	stub := llm.NewStub()
	stub.Respond("Pick the single branch", `{"branch":"Property Law","confidence":0.9,"reasoning":"collateral context"}`)

	res := &model.JobResult{}
	bj := NewBranchJudge(stub, llm.Budget{}, nil, 2)
	if err := bj.Judge(context.Background(), doc, []*model.ConceptMatch{m}, res); err != nil {
		t.Fatalf("judge: %v", err)
	}

	if len(m.Branches) != 1 || m.Branches[0] != "Property Law" {
		t.Errorf("branches = %v", m.Branches)
	}
	if len(m.BackupBranches) != 1 || m.BackupBranches[0] != "Financial Instruments" {
		t.Errorf("backup branches = %v", m.BackupBranches)
	}
	// The judge must see the surrounding sentence text, not just the span.
	calls := stub.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0], "The lender perfected its security over the collateral.") {
		t.Errorf("prompt missing sentence: %q", calls)
	}
	want := 0.7*0.6 + 0.3*0.9
	if math.Abs(m.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", m.Confidence, want)
	}
}

func TestBranchJudgeUnknownBranchSignalsOnly(t *testing.T) {
	doc := testDoc(t, "The lender perfected its security over the collateral.")
	m := model.NewConceptMatch(model.Span{Start: 25, End: 33}, "security",
		model.MatchPreferredLabel, 0.6, model.SourceRuler, "ruler")
	m.Branches = []string{"Financial Instruments", "Property Law"}

	stub := llm.NewStub()
	stub.Respond("Pick the single branch", `{"branch":"Maritime Law","confidence":0.9}`)

	res := &model.JobResult{}
	bj := NewBranchJudge(stub, llm.Budget{}, nil, 2)
	if err := bj.Judge(context.Background(), doc, []*model.ConceptMatch{m}, res); err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(m.Branches) != 2 {
		t.Errorf("branches narrowed on invalid judgment: %v", m.Branches)
	}
	if m.Confidence != 0.6 {
		t.Errorf("confidence changed: %v", m.Confidence)
	}
	if len(res.QualitySignals) != 1 {
		t.Errorf("quality signals = %+v", res.QualitySignals)
	}
}

func TestExpandFindsNewOccurrencesAndAltVariants(t *testing.T) {
	text := "The contract was signed. A second contract and the agreement followed."
	m := model.NewConceptMatch(model.Span{Start: 4, End: 12}, "contract",
		model.MatchPreferredLabel, 0.8, model.SourceRuler, "ruler")
	m.ConceptIRI = "folio:Contract"
	m.PreferredLabel = "Contract"
	m.Branches = []string{"Legal Concepts"}

	exp := NewExpander(testStore(), true, 0.95)
	out := exp.Expand(text, []*model.ConceptMatch{m})

	if len(out) != 3 {
		t.Fatalf("expected 3 annotations, got %d: %+v", len(out), out)
	}

	// Original occurrence gains the string-match source, keeps its score.
	if !out[0].HasSource(model.SourceStringMatch) {
		t.Errorf("anchor sources = %v", out[0].Sources)
	}
	if out[0].Confidence != 0.8 {
		t.Errorf("anchor confidence = %v", out[0].Confidence)
	}

	second := out[1]
	if second.SurfaceText != "contract" || second.MatchType != model.MatchExpanded {
		t.Errorf("second = %+v", second)
	}
	if second.Confidence != 0.8 {
		t.Errorf("second confidence = %v", second.Confidence)
	}

	alt := out[2]
	if alt.SurfaceText != "agreement" {
		t.Errorf("alt surface = %q", alt.SurfaceText)
	}
	if math.Abs(alt.Confidence-0.8*0.95) > 1e-9 {
		t.Errorf("alt confidence = %v, want %v", alt.Confidence, 0.8*0.95)
	}

	for i := 1; i < len(out); i++ {
		if out[i].Span.Start < out[i-1].Span.Start {
			t.Errorf("output not sorted by start: %+v", out)
		}
	}
}

func TestPipelineOfflineCompletes(t *testing.T) {
	cfg := model.DefaultConfig()
	doc := testDoc(t, "The plaintiff alleges breach of contract. The contract was signed in March.")

	p := New(cfg, nil, testStore(), nil, nil, nil)
	res, err := p.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Incomplete {
		t.Error("offline run should complete")
	}
	if len(res.Annotations) == 0 {
		t.Fatal("expected annotations from the deterministic arm")
	}
	stages := make(map[string]bool)
	for _, q := range res.QualitySignals {
		stages[q.Stage] = true
	}
	for _, want := range []string{"proposer", "reranker", "branch_judge", "metadata"} {
		if !stages[want] {
			t.Errorf("missing quality signal for %s: %+v", want, res.QualitySignals)
		}
	}
	for _, m := range res.Annotations {
		if m.State != model.StatePreliminary {
			t.Errorf("annotation %q state = %s, want preliminary", m.SurfaceText, m.State)
		}
	}
	if res.Metadata == nil {
		t.Error("expected fallback metadata")
	}
	if res.TextSHA256 == "" {
		t.Error("missing text digest")
	}
	if len(res.Timings) == 0 {
		t.Error("missing stage timings")
	}
}

func TestDiscoveryKeepsBothArmsRecords(t *testing.T) {
	cfg := model.DefaultConfig()
	doc := testDoc(t, "The plaintiff alleges breach of contract.")

	// A failing proposer records its chunk signal concurrently with the
	// ruler's timing; nothing from either arm may be lost.
	stub := llm.NewStub()
	stub.Fail("legal concept annotator", errors.New("provider down"))
	p := New(cfg, nil, testStore(), map[string]llm.Provider{"concept": stub}, nil, nil)

	res, err := p.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	sawChunkFailure := false
	for _, q := range res.QualitySignals {
		if q.Stage == "proposer" && strings.Contains(q.Reason, "proposal failed") {
			sawChunkFailure = true
		}
	}
	if !sawChunkFailure {
		t.Errorf("missing proposer chunk failure signal: %+v", res.QualitySignals)
	}

	timed := make(map[string]bool)
	for _, ti := range res.Timings {
		timed[ti.Stage] = true
	}
	if !timed["ruler"] || !timed["proposer"] {
		t.Errorf("missing arm timings: %+v", res.Timings)
	}
	if len(res.Annotations) == 0 {
		t.Error("deterministic arm output lost")
	}
}

func TestRunCanonicalAcrossRuns(t *testing.T) {
	cfg := model.DefaultConfig()
	text := "The plaintiff alleges breach of contract. The contract was signed in March."

	run := func() *model.JobResult {
		doc := testDoc(t, text)
		res, err := New(cfg, nil, testStore(), nil, nil, nil).Run(context.Background(), doc)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res
	}

	a, err := json.Marshal(run().Canonicalize())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(run().Canonicalize())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("canonical results differ:\n%s\n%s", a, b)
	}
}

func TestPipelineCancelledMarksIncomplete(t *testing.T) {
	cfg := model.DefaultConfig()
	doc := testDoc(t, "The plaintiff alleges breach of contract.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(cfg, nil, testStore(), nil, nil, nil)
	res, err := p.Run(ctx, doc)
	if err == nil {
		t.Fatal("expected context error")
	}
	if res == nil || !res.Incomplete {
		t.Errorf("expected incomplete partial result, got %+v", res)
	}
}

func TestPipelineRejectsEmptyDocument(t *testing.T) {
	p := New(model.DefaultConfig(), nil, testStore(), nil, nil, nil)
	if _, err := p.Run(context.Background(), &model.Document{}); err == nil {
		t.Fatal("expected input error")
	}
}
