package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"video-agent/metrics"
	"video-agent/provider"
)

// GeminiClient completes prompts with Google Gemini through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiClient creates a client for the Gemini developer API.
func NewGeminiClient(ctx context.Context, apiKey, model string, temperature float64) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, &provider.Error{Provider: "gemini", Op: "init", Err: provider.ErrMissingKey}
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, temperature: float32(temperature)}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, system, user string) (out string, err error) {
	defer func() { metrics.ObserveProvider("gemini", err) }()

	parts := []*genai.Part{genai.NewPartFromText(user)}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temp := g.temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", provider.Wrap("gemini", "generate", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &provider.Error{Provider: "gemini", Op: "generate", Body: "empty response"}
	}
	return text, nil
}
