// Package perception implements the LLM provider clients. Each provider is
// a plain HTTP client translating between the neutral types in
// internal/types and the provider's wire format; classification of failures
// for the retry policy happens here, retrying itself does not.
package perception

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"planforge/internal/logging"
	"planforge/internal/types"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements types.LLMClient against the Anthropic Messages
// API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.anthropic.com/v1",
		Model:     "claude-sonnet-4-5",
		MaxTokens: 8192,
		Timeout:   2 * time.Minute,
	}
}

// NewAnthropicClient creates a client with custom config, filling defaults
// for zero fields.
func NewAnthropicClient(config AnthropicConfig) *AnthropicClient {
	def := DefaultAnthropicConfig(config.APIKey)
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	return &AnthropicClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		maxTokens:  config.MaxTokens,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func (c *AnthropicClient) SupportsStreaming() bool { return true }
func (c *AnthropicClient) SupportsTools() bool     { return true }
func (c *AnthropicClient) SupportsVision() bool    { return true }

// Model returns the configured model id.
func (c *AnthropicClient) Model() string { return c.model }

// Anthropic wire types.

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthropicContent
}

type anthropicContent struct {
	Type string `json:"type"` // text, tool_use, tool_result

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a single user prompt.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.CompleteWithTools(ctx, systemPrompt,
		[]types.ChatMessage{{Role: "user", Content: userPrompt}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends the conversation with tool definitions.
func (c *AnthropicClient) CompleteWithTools(ctx context.Context, systemPrompt string, history []types.ChatMessage, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if c.apiKey == "" {
		return nil, &ProviderError{Provider: "anthropic", Kind: KindAuth, Message: "API key not configured"}
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  toAnthropicMessages(history),
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	timer := logging.StartTimer(logging.CategoryAPI, "anthropic.CompleteWithTools")
	defer timer.Stop()
	logging.APIDebug("[anthropic] request: model=%s messages=%d tools=%d", c.model, len(history), len(tools))

	body, err := c.post(ctx, "/messages", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{Provider: "anthropic", Kind: KindMalformed,
			Message: "unparseable response body", Err: err}
	}
	if parsed.Error != nil {
		return nil, &ProviderError{Provider: "anthropic", Kind: KindInvalidRequest,
			Message: parsed.Error.Message}
	}

	out := &types.LLMToolResponse{
		StopReason: parsed.StopReason,
		Usage: types.UsageMetadata{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
	var texts []string
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	out.Text = strings.Join(texts, "")

	logging.APIDebug("[anthropic] response: stop=%s tool_calls=%d tokens=%d/%d",
		out.StopReason, len(out.ToolCalls), out.Usage.InputTokens, out.Usage.OutputTokens)
	return out, nil
}

// CompleteWithStreaming streams a completion as SSE text deltas.
func (c *AnthropicClient) CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if c.apiKey == "" {
			errs <- &ProviderError{Provider: "anthropic", Kind: KindAuth, Message: "API key not configured"}
			return
		}

		reqBody := anthropicRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System:    systemPrompt,
			Messages:  []anthropicMessage{{Role: "user", Content: userPrompt}},
			Stream:    true,
		}
		data, err := json.Marshal(reqBody)
		if err != nil {
			errs <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(data))
		if err != nil {
			errs <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errs <- wrapTransport("anthropic", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errs <- statusError("anthropic", resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}
			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if json.Unmarshal([]byte(payload), &event) != nil {
				continue
			}
			if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
				select {
				case chunks <- event.Delta.Text:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- wrapTransport("anthropic", err)
		}
	}()

	return chunks, errs
}

func (c *AnthropicClient) post(ctx context.Context, path string, reqBody any) ([]byte, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport("anthropic", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport("anthropic", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("anthropic", resp.StatusCode, errorMessage(body), resp.Header.Get("Retry-After"))
	}
	return body, nil
}

func (c *AnthropicClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

// toAnthropicMessages converts neutral history into the Messages API shape.
// Assistant tool calls become tool_use blocks; tool results become user
// messages carrying tool_result blocks, which is what the API requires.
func toAnthropicMessages(history []types.ChatMessage) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropicMessage{Role: "assistant", Content: m.Content})
				continue
			}
			var blocks []anthropicContent
			if m.Content != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContent{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Input,
				})
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})
		case "tool_result":
			out = append(out, anthropicMessage{Role: "user", Content: []anthropicContent{{
				Type:      "tool_result",
				ToolUseID: m.ToolUseID,
				Content:   m.Content,
				IsError:   m.IsError,
			}}})
		default:
			out = append(out, anthropicMessage{Role: "user", Content: m.Content})
		}
	}
	return out
}

// wrapTransport classifies a transport-level failure.
func wrapTransport(provider string, err error) *ProviderError {
	kind := KindServer
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Message: err.Error(), Err: err}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; e = unwrapOne(e) {
		if t, ok := e.(timeout); ok && t.Timeout() {
			return true
		}
	}
	return strings.Contains(err.Error(), "context deadline exceeded")
}

func unwrapOne(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

// errorMessage pulls the human-readable message out of a provider error
// body, falling back to the raw body.
func errorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
