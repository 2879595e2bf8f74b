package perception

import (
	"fmt"

	"planforge/internal/config"
	"planforge/internal/logging"
	"planforge/internal/types"
)

// NewClient builds the provider client selected by configuration.
func NewClient(cfg *config.Config) (types.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "anthropic", "":
		logging.API("using anthropic provider, model=%s", cfg.LLM.Model)
		return NewAnthropicClient(AnthropicConfig{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.GetLLMTimeout(),
		}), nil
	case "openai":
		logging.API("using openai provider, model=%s", cfg.LLM.Model)
		return NewOpenAIClient(OpenAIConfig{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.GetLLMTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (expected anthropic or openai)", cfg.LLM.Provider)
	}
}
