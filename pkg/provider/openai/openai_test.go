package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/provider"
	"github.com/rhuss/codeloop/pkg/provider/openaicompat"
)

func TestOpenAIProvider_Name(t *testing.T) {
	p, err := New(DefaultConfig("k"))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer p.Close()

	if p.Name() != "openai" {
		t.Errorf("expected name %q, got %q", "openai", p.Name())
	}
}

func TestOpenAIProvider_New_MissingBaseURL(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error for missing BaseURL")
	}
}

func TestOpenAIProvider_Complete_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaicompat.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-3.5-turbo",
			Choices: []openaicompat.ChatChoice{
				{
					Message:      openaicompat.ChatMessage{Role: "assistant", Content: api.StringPtr("Hello!")},
					FinishReason: "stop",
				},
			},
			Usage: &openaicompat.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer p.Close()

	resp, err := p.Complete(context.Background(), &provider.ProviderRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []provider.ProviderMessage{{Role: "user", Content: api.StringPtr("Hi")}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content == nil || *resp.Content != "Hello!" {
		t.Errorf("expected content %q, got %v", "Hello!", resp.Content)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(resp.ToolCalls))
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestOpenAIProvider_Complete_ToolCall(t *testing.T) {
	var received map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-2",
			"model": "m",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "javascript", "arguments": "{\"code\":\"1+1\",\"minified\":false}"}}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer p.Close()

	parallel := false
	resp, err := p.Complete(context.Background(), &provider.ProviderRequest{
		Model: "m",
		Messages: []provider.ProviderMessage{
			{Role: "user", Content: api.StringPtr("compute")},
			{Role: "assistant", Content: nil, ToolCalls: []provider.ProviderToolCall{{
				ID: "call_0", Type: "function",
				Function: provider.ProviderFunctionCall{Name: "javascript", Arguments: `{"code":"0"}`},
			}}},
			{Role: "tool", Content: api.StringPtr(`{"result":"0","stdout":""}`), ToolCallID: "call_0"},
		},
		Tools: []provider.ProviderTool{{
			Type:     "function",
			Function: provider.ProviderFunctionDef{Name: "javascript", Parameters: json.RawMessage(`{"type":"object"}`)},
		}},
		ParallelToolCalls: &parallel,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != nil {
		t.Errorf("expected nil content, got %q", *resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "javascript" {
		t.Errorf("unexpected tool call %+v", tc)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("expected finish_reason tool_calls, got %q", resp.FinishReason)
	}

	if received["parallel_tool_calls"] != false {
		t.Errorf("expected parallel_tool_calls=false in request, got %v", received["parallel_tool_calls"])
	}
	msgs, _ := received["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages sent, got %d", len(msgs))
	}
	assistant := msgs[1].(map[string]any)
	content, present := assistant["content"]
	if !present || content != nil {
		t.Errorf("expected explicit null content on tool call message, got %v (present=%v)", content, present)
	}
	tool := msgs[2].(map[string]any)
	if tool["tool_call_id"] != "call_0" {
		t.Errorf("expected tool_call_id call_0, got %v", tool["tool_call_id"])
	}
}

func TestOpenAIProvider_Complete_AuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer sk-test-123" {
			t.Errorf("expected Authorization %q, got %q", "Bearer sk-test-123", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"m","choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, APIKey: "sk-test-123"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer p.Close()

	if _, err := p.Complete(context.Background(), &provider.ProviderRequest{Model: "m"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestOpenAIProvider_Complete_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType api.ErrorType
		wantMsg  string
	}{
		{"server error", http.StatusInternalServerError, "", api.ErrorTypeServerError, "HTTP 500"},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`, api.ErrorTypeAuthentication, "Incorrect API key"},
		{"rate limited", http.StatusTooManyRequests, "", api.ErrorTypeTooManyRequests, "rate limit"},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad tools"}}`, api.ErrorTypeInvalidRequest, "bad tools"},
		{"no choices", http.StatusOK, `{"model":"m","choices":[]}`, api.ErrorTypeModelError, "no choices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p, err := New(Config{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("failed to create provider: %v", err)
			}
			defer p.Close()

			_, err = p.Complete(context.Background(), &provider.ProviderRequest{Model: "m"})
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *api.APIError, got %T (%v)", err, err)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("expected error type %q, got %q", tt.wantType, apiErr.Type)
			}
			if !strings.Contains(apiErr.Message, tt.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantMsg, apiErr.Message)
			}
		})
	}
}

func TestOpenAIProvider_Complete_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := New(Config{BaseURL: url})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer p.Close()

	_, err = p.Complete(context.Background(), &provider.ProviderRequest{Model: "m"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if !strings.Contains(apiErr.Message, "backend connection error") {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}
