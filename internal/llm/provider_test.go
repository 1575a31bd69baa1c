package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/folioenrich/folioenrich/internal/model"
)

func TestStructuredIntoParsesResponse(t *testing.T) {
	stub := NewStub().Respond("classify", `{"document_type": "motion", "confidence": 0.8}`)

	var out struct {
		DocumentType string  `json:"document_type"`
		Confidence   float64 `json:"confidence"`
	}
	err := StructuredInto(context.Background(), stub, "classify this text", nil, Budget{}, &out)
	if err != nil {
		t.Fatalf("StructuredInto: %v", err)
	}
	if out.DocumentType != "motion" || out.Confidence != 0.8 {
		t.Errorf("out = %+v", out)
	}
}

func TestStructuredIntoStripsCodeFences(t *testing.T) {
	stub := NewStub().Respond("classify", "```json\n{\"document_type\": \"brief\"}\n```")

	var out struct {
		DocumentType string `json:"document_type"`
	}
	if err := StructuredInto(context.Background(), stub, "classify this", nil, Budget{}, &out); err != nil {
		t.Fatalf("StructuredInto: %v", err)
	}
	if out.DocumentType != "brief" {
		t.Errorf("document_type = %q", out.DocumentType)
	}
}

func TestStructuredIntoRetriesThenWrapsTransient(t *testing.T) {
	stub := NewStub().Fail("classify", errors.New("connection refused"))

	var out map[string]any
	err := StructuredInto(context.Background(), stub, "classify this", nil, Budget{}, &out)
	if !errors.Is(err, model.ErrTransientDependency) {
		t.Fatalf("err = %v, want ErrTransientDependency", err)
	}
	if calls := len(stub.Calls()); calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
}

func TestStructuredIntoMalformedWrapsSchema(t *testing.T) {
	stub := NewStub().Respond("classify", "definitely not json")

	var out map[string]any
	err := StructuredInto(context.Background(), stub, "classify this", nil, Budget{}, &out)
	if !errors.Is(err, model.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func TestStructuredIntoStopsOnCancel(t *testing.T) {
	stub := NewStub().Fail("classify", context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out map[string]any
	start := time.Now()
	err := StructuredInto(ctx, stub, "classify this", nil, Budget{}, &out)
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Error("cancelled call waited through the retry backoff")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", "{\"a\": 1}\n"},
		{"fenced no lang", "```\n{\"a\": 1}\n```", "{\"a\": 1}\n"},
		{"surrounding prose", "Here you go:\n```json\n{\"a\": 1}\n```", "{\"a\": 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(extractJSON([]byte(tt.in))); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewProviderSelection(t *testing.T) {
	p, err := NewProvider(model.LLMConfig{})
	if err != nil || p != nil {
		t.Errorf("empty provider = %v, %v; want nil, nil", p, err)
	}
	if _, err := NewProvider(model.LLMConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestTaskProvidersFallback(t *testing.T) {
	stub := NewStub()
	cfg := model.DefaultConfig()
	out := TaskProviders(cfg, stub)
	for _, task := range []string{"concept", "rerank", "branch_judge", "metadata"} {
		if out[task] != Provider(stub) {
			t.Errorf("task %s did not fall back to the default provider", task)
		}
	}
}

func TestPropertyLinkPromptCarriesSentence(t *testing.T) {
	prompt := BuildPropertyLinkPrompt("breached", "breaches",
		"The seller breached the contract.",
		[]string{"folio:LegalEntity"}, []string{"folio:Contract"})
	for _, want := range []string{
		"breached",
		"breaches",
		"The seller breached the contract.",
		"folio:LegalEntity",
		"folio:Contract",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestStubUnmatchedPrompt(t *testing.T) {
	stub := NewStub().Respond("alpha", `{}`)
	if _, err := stub.Structured(context.Background(), "beta prompt", nil, Budget{}); !errors.Is(err, ErrNoRule) {
		t.Errorf("err = %v, want ErrNoRule", err)
	}
}
