package llm

import (
	"context"
	"fmt"
	"net/http"

	"video-agent/config"
)

// New builds the completer selected by llm.provider
func New(ctx context.Context, cfg config.LLMConfig, secrets config.Secrets, httpClient *http.Client) (Completer, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewChatClient(ChatConfig{
			Name:        "openai",
			BaseURL:     cfg.BaseURL,
			APIKey:      secrets.OpenAIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, httpClient), nil
	case "groq":
		base := cfg.BaseURL
		if base == "" {
			base = GroqBaseURL
		}
		return NewChatClient(ChatConfig{
			Name:        "groq",
			BaseURL:     base,
			APIKey:      secrets.GroqKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, httpClient), nil
	case "gemini":
		return NewGeminiClient(ctx, secrets.GeminiKey, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
