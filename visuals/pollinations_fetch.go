package visuals

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"video-agent/config"
	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/provider"
)

// Pollinations renders images via Pollinations.ai (free, no key needed)
type Pollinations struct {
	baseURL    string
	width      int
	height     int
	httpClient *http.Client
	backoff    time.Duration
}

// NewPollinations creates a new fetcher
func NewPollinations(cfg config.ImagesConfig, httpClient *http.Client) *Pollinations {
	base := "https://image.pollinations.ai"
	if cfg.Provider == "pollinations" && cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Pollinations{
		baseURL:    base,
		width:      cfg.Width,
		height:     cfg.Height,
		httpClient: httpClient,
		backoff:    3 * time.Second,
	}
}

// Generate renders prompt. The seed is derived from the prompt so reruns of
// the same script produce the same images.
func (p *Pollinations) Generate(ctx context.Context, prompt string) ([]byte, error) {
	logger := logging.FromContext(ctx, "visuals")

	imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true&model=flux&seed=%d",
		p.baseURL, url.PathEscape(prompt), p.width, p.height, seed(prompt))

	var data []byte
	// Pollinations occasionally times out
	err := provider.Retry(ctx, 3, p.backoff, func(attempt int) error {
		var err error
		data, err = p.download(ctx, imageURL)
		metrics.ObserveProvider("pollinations", err)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("pollinations fetch failed")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pollinations fetch failed: %w", err)
	}
	return data, nil
}

func (p *Pollinations) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; video-agent/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.Wrap("pollinations", "generate", err)
	}
	defer resp.Body.Close()

	if err := provider.Check(resp, "pollinations", "generate"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Wrap("pollinations", "generate", err)
	}
	return checkImage("pollinations", data)
}

func seed(prompt string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	return h.Sum32() % 1_000_000
}

// ImageGenerator renders one prompt into image bytes
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// New builds the image generator selected by images.provider
func New(cfg config.ImagesConfig, apiKey string, httpClient *http.Client) (ImageGenerator, error) {
	switch cfg.Provider {
	case "together", "":
		return NewTogether(cfg, apiKey, httpClient), nil
	case "pollinations":
		return NewPollinations(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown images provider %q", cfg.Provider)
	}
}
