package llm

import (
	"fmt"
	"strings"

	"github.com/folioenrich/folioenrich/internal/model"
)

// NewProvider creates a provider from configuration. An empty provider name
// returns (nil, nil): the pipeline treats a nil Provider as "LM offline"
// and degrades per its rules.
func NewProvider(cfg model.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "openai-compatible":
		return NewOpenAIProvider(cfg)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, openai-compatible)", cfg.Provider)
	}
}

// TaskProviders resolves per-task providers from the task_llm selection map,
// falling back to the default provider. Selection values are
// "provider/model" pass-through strings.
func TaskProviders(cfg model.Config, fallback Provider) map[string]Provider {
	tasks := []string{
		"concept", "rerank", "branch_judge", "document_type",
		"metadata", "individual", "property", "area_of_law",
	}
	out := make(map[string]Provider, len(tasks))
	for _, task := range tasks {
		out[task] = fallback
		sel, ok := cfg.TaskLLM[task]
		if !ok || sel == "" {
			continue
		}
		taskCfg := cfg.LLM
		if provider, m, found := strings.Cut(sel, "/"); found {
			taskCfg.Provider = provider
			taskCfg.Model = m
		} else {
			taskCfg.Model = sel
		}
		if p, err := NewProvider(taskCfg); err == nil && p != nil {
			out[task] = p
		}
	}
	return out
}
