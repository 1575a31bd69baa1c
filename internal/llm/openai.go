package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/folioenrich/folioenrich/internal/model"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIProvider implements Provider over any OpenAI-compatible chat API
// (OpenAI itself, or a local server via BaseURL).
type OpenAIProvider struct {
	client  *openai.Client
	cfg     model.LLMConfig
	limiter *rate.Limiter
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg model.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai provider requires an API key or base URL")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		// Outbound call pacing so concurrent chunk tasks do not saturate
		// the provider.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) chat(ctx context.Context, system, prompt string, budget Budget, jsonMode bool) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	timeout := budget.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m := p.cfg.Model
	if m == "" {
		m = openai.GPT4oMini
	}
	maxTokens := budget.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model: m,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Structured asks for a JSON object response conforming to schema.
func (p *OpenAIProvider) Structured(ctx context.Context, prompt string, schema json.RawMessage, budget Budget) (json.RawMessage, error) {
	system := "You are a precise legal-document analysis engine. Respond with a single JSON object conforming to this schema, nothing else:\n" + string(schema)
	out, err := p.chat(ctx, system, prompt, budget, true)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// Complete returns a free-form response.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, budget Budget) (string, error) {
	return p.chat(ctx, "You are a helpful legal writing assistant.", prompt, budget, false)
}
