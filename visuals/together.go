package visuals

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"video-agent/config"
	"video-agent/metrics"
	"video-agent/provider"
)

// Together renders images with the Together AI inference endpoint
type Together struct {
	cfg        config.ImagesConfig
	apiKey     string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
}

// NewTogether creates a Together image client
func NewTogether(cfg config.ImagesConfig, apiKey string, httpClient *http.Client) *Together {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.together.xyz"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Together{cfg: cfg, apiKey: apiKey, httpClient: httpClient, retries: 3, backoff: 3 * time.Second}
}

type togetherRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
}

type togetherResponse struct {
	Output struct {
		Choices []struct {
			ImageBase64 string `json:"image_base64"`
		} `json:"choices"`
	} `json:"output"`
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate renders prompt and returns encoded image bytes
func (t *Together) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if t.apiKey == "" {
		return nil, &provider.Error{Provider: "together", Op: "generate", Err: provider.ErrMissingKey}
	}
	body, err := json.Marshal(togetherRequest{
		Model:          t.cfg.Model,
		Prompt:         prompt,
		NegativePrompt: t.cfg.NegativePrompt,
		Width:          t.cfg.Width,
		Height:         t.cfg.Height,
		Steps:          t.cfg.Steps,
		N:              1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var img []byte
	err = provider.Retry(ctx, t.retries, t.backoff, func(int) error {
		var err error
		img, err = t.post(ctx, body)
		metrics.ObserveProvider("together", err)
		return err
	})
	return img, err
}

func (t *Together) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/inference", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, provider.Wrap("together", "generate", err)
	}
	defer resp.Body.Close()

	if err := provider.Check(resp, "together", "generate"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Wrap("together", "generate", err)
	}

	// some deployments answer with the image itself
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return checkImage("together", data)
	}

	var parsed togetherResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &provider.Error{Provider: "together", Op: "generate", Err: fmt.Errorf("decode response: %w", err)}
	}
	var encoded string
	switch {
	case len(parsed.Output.Choices) > 0:
		encoded = parsed.Output.Choices[0].ImageBase64
	case len(parsed.Data) > 0:
		encoded = parsed.Data[0].B64JSON
	}
	if encoded == "" {
		return nil, &provider.Error{Provider: "together", Op: "generate", Body: "no image in response"}
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &provider.Error{Provider: "together", Op: "generate", Err: fmt.Errorf("decode image: %w", err)}
	}
	return checkImage("together", img)
}

// checkImage rejects payloads that are not images, such as HTML error pages.
func checkImage(providerName string, data []byte) ([]byte, error) {
	if len(data) < 100 {
		return nil, &provider.Error{Provider: providerName, Op: "generate", Body: fmt.Sprintf("response too small (%d bytes)", len(data))}
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return nil, &provider.Error{Provider: providerName, Op: "generate", Body: "response is " + ct + ", not an image"}
	}
	return data, nil
}
