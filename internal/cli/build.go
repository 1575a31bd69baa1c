package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/folioenrich/folioenrich/internal/cache"
	"github.com/folioenrich/folioenrich/internal/embedding"
	"github.com/folioenrich/folioenrich/internal/llm"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
	"github.com/folioenrich/folioenrich/internal/pipeline"
	"github.com/folioenrich/folioenrich/internal/worker"
)

// llmCallRate bounds provider calls per second across all jobs. Each
// task gets its own bucket at this rate.
const (
	llmCallRate  = 10.0
	llmCallBurst = 20
)

// newLogger builds the process logger. Verbose switches to development
// output with debug level.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildPipeline assembles the full stage graph from configuration:
// ontology snapshot, per-task model providers, the optional embedding
// index and the shared rate limiter.
func buildPipeline(ctx context.Context, cfg model.Config, log *zap.Logger) (*pipeline.Pipeline, error) {
	if cfg.OntologyPath == "" {
		return nil, fmt.Errorf("%w: ontology_path is required", model.ErrInput)
	}
	acc, err := ontology.LoadFile(cfg.OntologyPath)
	if err != nil {
		return nil, err
	}
	log.Info("ontology loaded",
		zap.Int("classes", acc.ClassCount()),
		zap.Int("properties", acc.PropertyCount()))

	fallback, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	providers := llm.TaskProviders(cfg, fallback)
	if fallback == nil {
		log.Warn("no language model configured, running deterministic arms only")
	}

	index, err := buildIndex(ctx, cfg, acc, log)
	if err != nil {
		// The index is an enhancement; triage and scoring degrade
		// lexically without it.
		log.Warn("embedding index unavailable", zap.Error(err))
	}

	limiter := worker.NewLimiter(llmCallRate, llmCallBurst)
	return pipeline.New(cfg, log, acc, providers, index, limiter), nil
}

func buildIndex(ctx context.Context, cfg model.Config, acc ontology.Accessor, log *zap.Logger) (*embedding.Index, error) {
	if cfg.Embedding.Provider == "" {
		return nil, nil
	}
	ttl := time.Duration(cfg.Embedding.CacheTTL) * time.Second
	store := cache.NewLayered(ttl, filepath.Join(cfg.JobsDir, "embed-cache"), 30*24*time.Hour)
	svc, err := embedding.NewOpenAIService(cfg.Embedding, store)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	index, err := embedding.BuildIndex(ctx, svc, acc)
	if err != nil {
		return nil, err
	}
	log.Info("embedding index built",
		zap.Int("classes", index.Len()),
		zap.Duration("took", time.Since(start)))
	return index, nil
}
