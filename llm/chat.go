// Package llm talks to chat-completion models used for scripts, prompts and
// publish metadata.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"video-agent/metrics"
	"video-agent/provider"
)

// Completer turns a system and user prompt into model text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// ChatClient speaks the OpenAI chat-completions protocol (OpenAI, Groq, ...)
type ChatClient struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// ChatConfig configures a ChatClient
type ChatConfig struct {
	Name        string // provider label for errors and metrics
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewChatClient creates a chat client using the shared http client
func NewChatClient(cfg ChatConfig, httpClient *http.Client) *ChatClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &ChatClient{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  httpClient,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one system+user exchange and returns the first choice
func (c *ChatClient) Complete(ctx context.Context, system, user string) (out string, err error) {
	defer func() { metrics.ObserveProvider(c.name, err) }()

	if c.apiKey == "" {
		return "", &provider.Error{Provider: c.name, Op: "chat", Err: provider.ErrMissingKey}
	}

	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", provider.Wrap(c.name, "chat", err)
	}
	defer resp.Body.Close()

	if err := provider.Check(resp, c.name, "chat"); err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &provider.Error{Provider: c.name, Op: "chat", Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &provider.Error{Provider: c.name, Op: "chat", Body: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &provider.Error{Provider: c.name, Op: "chat", Body: "no choices returned"}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// CleanJSON strips markdown fences models like to wrap JSON in
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// CompleteJSON asks for a JSON answer and decodes it into out
func CompleteJSON(ctx context.Context, c Completer, system, user string, out any) error {
	text, err := c.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	content := CleanJSON(text)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("parse model JSON: %w (content: %s)", err, truncate(content, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
