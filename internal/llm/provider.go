// Package llm defines the narrow language-model contract the pipeline
// consumes and its OpenAI-compatible implementation. The core never sees a
// provider kind, only this interface; per-task selection happens in the
// factory.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/folioenrich/folioenrich/internal/model"
)

// Budget bounds a single call.
type Budget struct {
	MaxTokens int
	Timeout   time.Duration
}

// DefaultBudget applies the configured per-call defaults.
func DefaultBudget(cfg model.LLMConfig) Budget {
	return Budget{MaxTokens: cfg.MaxTokens, Timeout: cfg.Timeout()}
}

// Provider is the language-model collaborator contract.
type Provider interface {
	// Name returns the provider name for logs and quality signals.
	Name() string

	// Structured returns a JSON response intended to conform to schema.
	// Schema validation happens in StructuredInto.
	Structured(ctx context.Context, prompt string, schema json.RawMessage, budget Budget) (json.RawMessage, error)

	// Complete returns a free-form text response.
	Complete(ctx context.Context, prompt string, budget Budget) (string, error)
}

// StructuredInto calls Structured and unmarshals the response into out.
// Failures are retried once with backoff. A persistent parse failure wraps
// model.ErrSchema; a persistent provider failure wraps
// model.ErrTransientDependency.
func StructuredInto(ctx context.Context, p Provider, prompt string, schema json.RawMessage, budget Budget, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		raw, err := p.Structured(ctx, prompt, schema, budget)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			lastErr = fmt.Errorf("%w: %s: %v", model.ErrTransientDependency, p.Name(), err)
			continue
		}

		if err := json.Unmarshal(extractJSON(raw), out); err != nil {
			lastErr = fmt.Errorf("%w: %s: %v", model.ErrSchema, p.Name(), err)
			continue
		}
		return nil
	}
	return lastErr
}

// extractJSON strips the markdown code fences some models wrap around JSON.
func extractJSON(raw json.RawMessage) json.RawMessage {
	s := strings.TrimSpace(string(raw))
	if i := strings.Index(s, "```"); i >= 0 {
		if j := strings.LastIndex(s, "```"); j > i {
			inner := s[i+3 : j]
			if k := strings.Index(inner, "\n"); k >= 0 {
				inner = inner[k+1:]
			}
			return json.RawMessage(inner)
		}
	}
	return json.RawMessage(s)
}
