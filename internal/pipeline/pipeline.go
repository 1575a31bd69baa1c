// Package pipeline implements the three-phase enrichment run: dual-arm
// concept discovery, concurrent refinement and extraction, then
// sequential expansion, linking and synthesis. Every stage degrades
// rather than fails; the only hard stops are invalid input and caller
// cancellation.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/folioenrich/folioenrich/internal/depparse"
	"github.com/folioenrich/folioenrich/internal/embedding"
	"github.com/folioenrich/folioenrich/internal/individual"
	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/metrics"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
	"github.com/folioenrich/folioenrich/internal/property"
	"github.com/folioenrich/folioenrich/internal/ruler"
	"github.com/folioenrich/folioenrich/internal/worker"
)

// Pipeline wires the stages for one deployment. It is safe for
// concurrent use; all per-job state lives in the JobResult.
type Pipeline struct {
	cfg     model.Config
	log     *zap.Logger
	acc     ontology.Accessor
	index   *embedding.Index
	limiter *worker.Limiter

	providers map[string]llm.Provider
	budget    llm.Budget

	ruler       *ruler.Ruler
	propMatcher *property.Matcher

	// OnStage, when set, is called with each stage name as it starts.
	// Used for job progress reporting.
	OnStage func(stage string)

	// OnStageDone, when set, receives the result after a stage completes,
	// at a point where no goroutine is mutating it. Callers snapshot it
	// for partial results and annotation event streams.
	OnStageDone func(stage string, res *model.JobResult)
}

// New builds a pipeline. providers maps task names to language-model
// providers; nil entries (or a nil map) mean that task runs offline. A
// nil index disables semantic scoring throughout.
func New(cfg model.Config, log *zap.Logger, acc ontology.Accessor, providers map[string]llm.Provider, index *embedding.Index, limiter *worker.Limiter) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:         cfg,
		log:         log,
		acc:         acc,
		index:       index,
		limiter:     limiter,
		providers:   providers,
		budget:      llm.DefaultBudget(cfg.LLM),
		ruler:       ruler.New(acc, cfg.HyphenAsWordChar),
		propMatcher: property.NewMatcher(acc, cfg.HyphenAsWordChar),
	}
}

// provider returns the task's provider, or nil when offline.
func (p *Pipeline) provider(task string) llm.Provider {
	if p.providers == nil {
		return nil
	}
	return p.providers[task]
}

// Run enriches one normalized document. The returned result is complete
// unless ctx was cancelled, in which case Incomplete is set and whatever
// was produced so far is returned along with the context error.
func (p *Pipeline) Run(ctx context.Context, doc *model.Document) (*model.JobResult, error) {
	if doc == nil || doc.Text == "" {
		return nil, fmt.Errorf("%w: empty document", model.ErrInput)
	}

	sum := sha256.Sum256([]byte(doc.Text))
	res := &model.JobResult{
		TextSHA256: hex.EncodeToString(sum[:]),
		Config:     p.cfg,
	}
	res.LogActivity("pipeline", fmt.Sprintf("start: %d chars, %d chunks", len(doc.Text), len(doc.Chunks)))

	// One signal per skipped model-backed stage so callers can see the
	// exact degradation surface. Stages with deterministic fallbacks
	// (metadata, area of law) record their own fallback signals.
	for _, t := range []struct{ task, stage string }{
		{"concept", "proposer"},
		{"rerank", "reranker"},
		{"branch_judge", "branch_judge"},
		{"document_type", "document_type"},
	} {
		if p.provider(t.task) == nil {
			res.AddQualitySignal(t.stage, "language model offline, stage skipped")
		}
	}

	if err := p.phaseDiscovery(ctx, doc, res); err != nil {
		return p.finish(res, err)
	}
	if err := p.phaseRefine(ctx, doc, res); err != nil {
		return p.finish(res, err)
	}
	if err := p.phaseSynthesis(ctx, doc, res); err != nil {
		return p.finish(res, err)
	}
	return p.finish(res, nil)
}

func (p *Pipeline) finish(res *model.JobResult, err error) (*model.JobResult, error) {
	if err != nil {
		res.Incomplete = true
		res.LogActivity("pipeline", "interrupted: "+err.Error())
		return res, err
	}
	for _, m := range res.Annotations {
		if len(m.Sources) > 0 {
			metrics.AnnotationsProduced.WithLabelValues(string(m.Sources[0])).Inc()
		}
	}
	for _, q := range res.QualitySignals {
		metrics.QualitySignalsTotal.WithLabelValues(q.Stage).Inc()
	}
	res.LogActivity("pipeline", fmt.Sprintf("done: %d annotations, %d individuals, %d properties, %d triples",
		len(res.Annotations), len(res.Individuals), len(res.Properties), len(res.Triples)))
	return res, nil
}

// phaseDiscovery runs the two discovery arms concurrently, then
// reconciles and resolves their union.
func (p *Pipeline) phaseDiscovery(ctx context.Context, doc *model.Document, res *model.JobResult) error {
	// Each arm records into its own scratch result; JobResult appends are
	// not synchronized, and merging in a fixed order keeps signal and
	// timing order deterministic across runs.
	var (
		rulerOut     []*model.ConceptMatch
		proposerOut  []*model.ConceptMatch
		rulerScratch = &model.JobResult{}
		propScratch  = &model.JobResult{}
		wg           sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer recoverInto(rulerScratch, "ruler", p.log)
		start := time.Now()
		rulerOut = p.ruler.Match(doc.Text)
		observe(rulerScratch, "ruler", start)
	}()
	go func() {
		defer wg.Done()
		defer recoverInto(propScratch, "proposer", p.log)
		start := time.Now()
		proposer := NewProposer(p.provider("concept"), p.budget, p.limiter, p.branches(), p.cfg.StageConcurrency)
		proposerOut = proposer.Propose(ctx, doc, propScratch)
		observe(propScratch, "proposer", start)
	}()
	wg.Wait()
	merge(res, rulerScratch)
	merge(res, propScratch)
	if err := ctx.Err(); err != nil {
		return err
	}

	p.stage(res, "reconciler", func() {
		rec := NewReconciler(p.acc, p.index, p.cfg.ConflictThreshold)
		res.Annotations = rec.Reconcile(ctx, doc, rulerOut, proposerOut, res)
	})
	p.stage(res, "resolver", func() {
		NewResolver(p.acc, p.index).Resolve(ctx, res.Annotations, res)
	})
	return ctx.Err()
}

// phaseRefine runs the annotation refinement chain, individual
// extraction, property matching and document-type classification
// concurrently. The four tracks touch disjoint state; each records into
// its own scratch result merged afterwards.
func (p *Pipeline) phaseRefine(ctx context.Context, doc *model.Document, res *model.JobResult) error {
	type track struct {
		name    string
		scratch *model.JobResult
		fn      func(scratch *model.JobResult)
	}

	var (
		individuals []*model.Individual
		properties  []*model.PropertyAnnotation
		docType     string
	)

	tracks := []track{
		{name: "reranker", fn: func(s *model.JobResult) {
			start := time.Now()
			rr := NewReranker(p.provider("rerank"), p.budget, p.limiter, p.cfg.StageConcurrency)
			_ = rr.Rerank(ctx, doc, res.Annotations, s)
			observe(s, "reranker", start)

			start = time.Now()
			bj := NewBranchJudge(p.provider("branch_judge"), p.budget, p.limiter, p.cfg.StageConcurrency)
			_ = bj.Judge(ctx, doc, res.Annotations, s)
			observe(s, "branch_judge", start)
		}},
		{name: "individual_extraction", fn: func(s *model.JobResult) {
			start := time.Now()
			individuals = individual.ExtractAll(doc.Text)
			observe(s, "individual_extraction", start)
		}},
		{name: "property_extraction", fn: func(s *model.JobResult) {
			start := time.Now()
			properties = p.propMatcher.Match(doc.Text)
			observe(s, "property_extraction", start)
		}},
		{name: "document_type", fn: func(s *model.JobResult) {
			start := time.Now()
			dt := NewDocTyper(p.provider("document_type"), p.budget, p.limiter)
			docType = dt.Classify(ctx, doc, s)
			observe(s, "document_type", start)
		}},
	}

	var wg sync.WaitGroup
	for i := range tracks {
		tracks[i].scratch = &model.JobResult{}
		wg.Add(1)
		go func(t *track) {
			defer wg.Done()
			defer recoverInto(t.scratch, t.name, p.log)
			t.fn(t.scratch)
		}(&tracks[i])
	}
	wg.Wait()

	for _, t := range tracks {
		merge(res, t.scratch)
	}
	res.Individuals = individuals
	res.Properties = properties
	res.DocumentType = docType
	p.stageDone("refine", res)
	return ctx.Err()
}

// phaseSynthesis runs the sequential tail: expansion, linking, triples,
// areas of law, metadata and the document-type cross-check.
func (p *Pipeline) phaseSynthesis(ctx context.Context, doc *model.Document, res *model.JobResult) error {
	p.stage(res, "expander", func() {
		exp := NewExpander(p.acc, p.cfg.HyphenAsWordChar, p.cfg.AltLabelExpansionScale)
		res.Annotations = exp.Expand(doc.Text, res.Annotations)
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	p.stage(res, "individual_linking", func() {
		linker := individual.NewLinker(p.acc, p.provider("individual"), p.budget)
		for _, err := range linker.Link(ctx, doc, res.Individuals, res.Annotations) {
			if err != nil && !errors.Is(err, context.Canceled) {
				res.AddQualitySignal("individual_linking", err.Error())
			}
		}
	})
	p.stage(res, "property_linking", func() {
		linker := property.NewLinker(p.acc, p.provider("property"), p.budget)
		for _, err := range linker.Link(ctx, doc, res.Properties, res.Annotations) {
			if err != nil && !errors.Is(err, context.Canceled) {
				res.AddQualitySignal("property_linking", err.Error())
			}
		}
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	p.stage(res, "dependency_triples", func() {
		res.Triples = depparse.Extract(doc, res.Annotations, res.Properties)
	})

	p.stage(res, "area_of_law", func() {
		dt := NewDocTyper(p.provider("area_of_law"), p.budget, p.limiter)
		res.AreasOfLaw = dt.AreasOfLaw(ctx, res)
	})
	p.stage(res, "metadata", func() {
		NewSynthesizer(p.provider("metadata"), p.budget, p.limiter).Synthesize(ctx, doc, res)
	})
	p.stage(res, "document_type_check", func() {
		NewDocTyper(p.provider("document_type"), p.budget, p.limiter).CrossCheck(ctx, res)
	})
	return ctx.Err()
}

// stage wraps one sequential stage with progress, timing and panic
// recovery. A panicking stage degrades to a quality signal.
func (p *Pipeline) stage(res *model.JobResult, name string, fn func()) {
	if p.OnStage != nil {
		p.OnStage(name)
	}
	start := time.Now()
	func() {
		defer recoverInto(res, name, p.log)
		fn()
	}()
	observe(res, name, start)
	p.stageDone(name, res)
}

func (p *Pipeline) stageDone(name string, res *model.JobResult) {
	if p.OnStageDone != nil {
		p.OnStageDone(name, res)
	}
}

func (p *Pipeline) branches() []string {
	type brancher interface{ Branches() []string }
	if b, ok := p.acc.(brancher); ok {
		return b.Branches()
	}
	return nil
}

// observe records a stage timing on the result and in Prometheus.
func observe(res *model.JobResult, stage string, start time.Time) {
	d := time.Since(start)
	res.Timings = append(res.Timings, model.StageTiming{Stage: stage, Duration: d})
	metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// merge folds a scratch result's signals, log and timings into the main
// result. Scratch results exist so concurrent tracks never share res.
func merge(res, scratch *model.JobResult) {
	res.QualitySignals = append(res.QualitySignals, scratch.QualitySignals...)
	res.ActivityLog = append(res.ActivityLog, scratch.ActivityLog...)
	res.Timings = append(res.Timings, scratch.Timings...)
}

func recoverInto(res *model.JobResult, stage string, log *zap.Logger) {
	if r := recover(); r != nil {
		if log != nil {
			log.Error("stage panicked", zap.String("stage", stage), zap.Any("panic", r))
		}
		res.AddQualitySignal(stage, fmt.Sprintf("stage panicked: %v", r))
	}
}
