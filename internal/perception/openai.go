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

// OpenAIClient implements types.LLMClient against the Chat Completions API.
// Tool calling uses the function-calling shape; arguments arrive as a JSON
// string and are decoded into the neutral map form.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:    apiKey,
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o",
		MaxTokens: 8192,
		Timeout:   2 * time.Minute,
	}
}

// NewOpenAIClient creates a client with custom config, filling defaults for
// zero fields.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	def := DefaultOpenAIConfig(config.APIKey)
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
	return &OpenAIClient{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		maxTokens:  config.MaxTokens,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func (c *OpenAIClient) SupportsStreaming() bool { return true }
func (c *OpenAIClient) SupportsTools() bool     { return true }
func (c *OpenAIClient) SupportsVision() bool    { return false }

// Model returns the configured model id.
func (c *OpenAIClient) Model() string { return c.model }

// OpenAI wire types.

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
	Tools     []openAITool    `json:"tools,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a single user prompt.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.CompleteWithTools(ctx, systemPrompt,
		[]types.ChatMessage{{Role: "user", Content: userPrompt}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithTools sends the conversation with tool definitions.
func (c *OpenAIClient) CompleteWithTools(ctx context.Context, systemPrompt string, history []types.ChatMessage, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if c.apiKey == "" {
		return nil, &ProviderError{Provider: "openai", Kind: KindAuth, Message: "API key not configured"}
	}

	reqBody := openAIRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  toOpenAIMessages(systemPrompt, history),
	}
	for _, t := range tools {
		var ot openAITool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		reqBody.Tools = append(reqBody.Tools, ot)
	}

	timer := logging.StartTimer(logging.CategoryAPI, "openai.CompleteWithTools")
	defer timer.Stop()
	logging.APIDebug("[openai] request: model=%s messages=%d tools=%d", c.model, len(history), len(tools))

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport("openai", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport("openai", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("openai", resp.StatusCode, errorMessage(body), resp.Header.Get("Retry-After"))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{Provider: "openai", Kind: KindMalformed,
			Message: "unparseable response body", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Kind: KindMalformed,
			Message: "response contained no choices"}
	}

	choice := parsed.Choices[0]
	out := &types.LLMToolResponse{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: types.UsageMetadata{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, &ProviderError{Provider: "openai", Kind: KindMalformed,
					Message: fmt.Sprintf("tool call %s has unparseable arguments", tc.ID), Err: err}
			}
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	logging.APIDebug("[openai] response: finish=%s tool_calls=%d tokens=%d/%d",
		out.StopReason, len(out.ToolCalls), out.Usage.InputTokens, out.Usage.OutputTokens)
	return out, nil
}

// CompleteWithStreaming streams a completion as SSE chunks.
func (c *OpenAIClient) CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if c.apiKey == "" {
			errs <- &ProviderError{Provider: "openai", Kind: KindAuth, Message: "API key not configured"}
			return
		}

		reqBody := openAIRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			Messages:  toOpenAIMessages(systemPrompt, []types.ChatMessage{{Role: "user", Content: userPrompt}}),
			Stream:    true,
		}
		data, err := json.Marshal(reqBody)
		if err != nil {
			errs <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
		if err != nil {
			errs <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errs <- wrapTransport("openai", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errs <- statusError("openai", resp.StatusCode, errorMessage(body), resp.Header.Get("Retry-After"))
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
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if json.Unmarshal([]byte(payload), &event) != nil {
				continue
			}
			if len(event.Choices) > 0 && event.Choices[0].Delta.Content != "" {
				select {
				case chunks <- event.Choices[0].Delta.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- wrapTransport("openai", err)
		}
	}()

	return chunks, errs
}

// toOpenAIMessages converts neutral history into the chat completions
// shape. Tool results become role=tool messages correlated by tool_call_id.
func toOpenAIMessages(systemPrompt string, history []types.ChatMessage) []openAIMessage {
	out := make([]openAIMessage, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, openAIMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		switch m.Role {
		case "assistant":
			msg := openAIMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Input)
				var otc openAIToolCall
				otc.ID = tc.ID
				otc.Type = "function"
				otc.Function.Name = tc.Name
				otc.Function.Arguments = string(args)
				msg.ToolCalls = append(msg.ToolCalls, otc)
			}
			out = append(out, msg)
		case "tool_result":
			out = append(out, openAIMessage{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolUseID,
			})
		default:
			out = append(out, openAIMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
