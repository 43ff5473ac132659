// Package audio turns narration text into speech.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"video-agent/config"
	"video-agent/metrics"
	"video-agent/provider"
)

// ElevenLabs synthesizes speech with the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	cfg        config.AudioConfig
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewElevenLabs creates an ElevenLabs synthesizer
func NewElevenLabs(cfg config.AudioConfig, apiKey string, httpClient *http.Client) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ElevenLabs{cfg: cfg, apiKey: apiKey, httpClient: httpClient, backoff: 2 * time.Second}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MP3 bytes for text
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if e.apiKey == "" {
		return nil, &provider.Error{Provider: "elevenlabs", Op: "synthesize", Err: provider.ErrMissingKey}
	}
	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       e.cfg.Stability,
			SimilarityBoost: e.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", e.cfg.BaseURL, url.PathEscape(e.cfg.VoiceID))

	var audio []byte
	err = provider.Retry(ctx, e.cfg.Retries, e.backoff, func(int) error {
		var err error
		audio, err = e.post(ctx, endpoint, body)
		metrics.ObserveProvider("elevenlabs", err)
		return err
	})
	return audio, err
}

func (e *ElevenLabs) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, provider.Wrap("elevenlabs", "synthesize", err)
	}
	defer resp.Body.Close()

	if err := provider.Check(resp, "elevenlabs", "synthesize"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Wrap("elevenlabs", "synthesize", err)
	}
	if len(data) == 0 {
		return nil, &provider.Error{Provider: "elevenlabs", Op: "synthesize", Body: "empty audio"}
	}
	return data, nil
}
