package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/folioenrich/folioenrich/internal/cache"
	"github.com/folioenrich/folioenrich/internal/model"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIService embeds texts through any OpenAI-compatible embeddings API,
// reading through a cache so ontology labels are embedded at most once.
type OpenAIService struct {
	client  *openai.Client
	model   string
	cache   cache.Cache
	ttl     time.Duration
	limiter *rate.Limiter
}

// NewOpenAIService creates a cached embedding service. A nil store
// disables caching.
func NewOpenAIService(cfg model.EmbeddingConfig, store cache.Cache) (*OpenAIService, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding provider requires an API key or base URL")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	m := cfg.Model
	if m == "" {
		m = string(openai.SmallEmbedding3)
	}
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &OpenAIService{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   m,
		cache:   store,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}, nil
}

// Name returns the service name.
func (s *OpenAIService) Name() string { return "openai-embeddings" }

// Embed returns one vector per text, fetching only cache misses from the
// provider. Misses are batched into a single request.
func (s *OpenAIService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if s.cache != nil {
			if data, ok := s.cache.Get(s.key(text)); ok {
				if v, err := decodeVector(data); err == nil {
					out[i] = v
					continue
				}
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: missing,
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings: %v", model.ErrTransientDependency, err)
	}
	if len(resp.Data) != len(missing) {
		return nil, fmt.Errorf("%w: embeddings: got %d vectors for %d inputs",
			model.ErrTransientDependency, len(resp.Data), len(missing))
	}

	for j, d := range resp.Data {
		out[missingIdx[j]] = d.Embedding
		if s.cache != nil {
			if data, err := encodeVector(d.Embedding); err == nil {
				_ = s.cache.Set(s.key(missing[j]), data, s.ttl)
			}
		}
	}
	return out, nil
}

func (s *OpenAIService) key(text string) string {
	return cache.Key("embed", s.model, text)
}
