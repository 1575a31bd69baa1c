package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Stub is a deterministic in-memory Provider for tests and offline runs.
// Responses are selected by the first registered rule whose substring
// appears in the prompt; unmatched prompts return ErrNoRule so degradation
// paths can be exercised.
type Stub struct {
	mu    sync.Mutex
	rules []stubRule
	calls []string
}

type stubRule struct {
	substr   string
	response string
	err      error
}

// ErrNoRule is returned by Stub for prompts with no matching rule.
var ErrNoRule = fmt.Errorf("llm stub: no rule for prompt")

// NewStub creates an empty stub.
func NewStub() *Stub { return &Stub{} }

// Respond registers a canned JSON response for prompts containing substr.
func (s *Stub) Respond(substr, response string) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, stubRule{substr: substr, response: response})
	return s
}

// Fail registers an error for prompts containing substr.
func (s *Stub) Fail(substr string, err error) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, stubRule{substr: substr, err: err})
	return s
}

// Calls returns the prompts seen so far.
func (s *Stub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Name returns "stub".
func (s *Stub) Name() string { return "stub" }

// Structured returns the first matching canned response.
func (s *Stub) Structured(ctx context.Context, prompt string, _ json.RawMessage, _ Budget) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, prompt)
	for _, r := range s.rules {
		if strings.Contains(prompt, r.substr) {
			if r.err != nil {
				return nil, r.err
			}
			return json.RawMessage(r.response), nil
		}
	}
	return nil, ErrNoRule
}

// Complete returns the first matching canned response as text.
func (s *Stub) Complete(ctx context.Context, prompt string, budget Budget) (string, error) {
	raw, err := s.Structured(ctx, prompt, nil, budget)
	return string(raw), err
}
