package perception

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"planforge/internal/config"
	"planforge/internal/types"
)

func openAITestClient(url string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "gpt-4o",
		Timeout: 5 * time.Second,
	})
}

func TestOpenAIToolCallDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      "write_file",
							"arguments": `{"path":"a.txt","content":"hi"}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14},
		})
	}))
	defer srv.Close()

	resp, err := openAITestClient(srv.URL).CompleteWithTools(context.Background(), "sys",
		[]types.ChatMessage{{Role: "user", Content: "write hi to a.txt"}},
		[]types.ToolDefinition{{Name: "write_file", InputSchema: map[string]any{"type": "object"}}})
	if err != nil {
		t.Fatalf("CompleteWithTools: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	// The arguments JSON string must be decoded to a map.
	if tc.Input["path"] != "a.txt" || tc.Input["content"] != "hi" {
		t.Errorf("decoded input mismatch: %+v", tc.Input)
	}
	if resp.Usage.TotalTokens != 14 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestOpenAIMessageEncoding(t *testing.T) {
	var raw openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "ok"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{},
		})
	}))
	defer srv.Close()

	history := []types.ChatMessage{
		{Role: "user", Content: "write it"},
		{Role: "assistant",
			ToolCalls: []types.ToolCall{{ID: "call_1", Name: "write_file", Input: map[string]any{"path": "a.txt"}}}},
		{Role: "tool_result", Content: "written", ToolUseID: "call_1"},
	}
	if _, err := openAITestClient(srv.URL).CompleteWithTools(context.Background(), "sys", history, nil); err != nil {
		t.Fatalf("CompleteWithTools: %v", err)
	}

	// system + user + assistant + tool
	if len(raw.Messages) != 4 {
		t.Fatalf("sent %d messages, want 4", len(raw.Messages))
	}
	if raw.Messages[0].Role != "system" || raw.Messages[0].Content != "sys" {
		t.Errorf("system message mismatch: %+v", raw.Messages[0])
	}
	assistant := raw.Messages[2]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Function.Name != "write_file" {
		t.Errorf("assistant tool calls mismatch: %+v", assistant.ToolCalls)
	}
	tool := raw.Messages[3]
	if tool.Role != "tool" || tool.ToolCallID != "call_1" {
		t.Errorf("tool result message mismatch: %+v", tool)
	}
}

func TestOpenAIBadToolArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id": "call_1", "type": "function",
						"function": map[string]any{"name": "x", "arguments": "{broken"},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]int{},
		})
	}))
	defer srv.Close()

	_, err := openAITestClient(srv.URL).CompleteWithTools(context.Background(), "",
		[]types.ChatMessage{{Role: "user", Content: "go"}}, nil)
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindMalformed {
		t.Errorf("expected malformed error, got %v", err)
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}, "usage": map[string]int{}})
	}))
	defer srv.Close()

	_, err := openAITestClient(srv.URL).Complete(context.Background(), "hi")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindMalformed {
		t.Errorf("expected malformed error, got %v", err)
	}
}

func TestFactorySelectsProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "k"

	cfg.LLM.Provider = "anthropic"
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("anthropic: %v", err)
	}
	if _, ok := c.(*AnthropicClient); !ok {
		t.Errorf("got %T, want *AnthropicClient", c)
	}

	cfg.LLM.Provider = "openai"
	c, err = NewClient(cfg)
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := c.(*OpenAIClient); !ok {
		t.Errorf("got %T, want *OpenAIClient", c)
	}

	cfg.LLM.Provider = "cohere"
	if _, err := NewClient(cfg); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestClientsImplementInterfaces(t *testing.T) {
	var _ types.LLMClient = (*AnthropicClient)(nil)
	var _ types.LLMClient = (*OpenAIClient)(nil)
	var _ types.StreamingClient = (*AnthropicClient)(nil)
	var _ types.StreamingClient = (*OpenAIClient)(nil)
}
