// Package clips animates still images into short video clips, either through
// an asynchronous image-to-video provider or locally with a Ken Burns pan.
package clips

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"video-agent/config"
	"video-agent/ffmpeg"
	"video-agent/poller"
	"video-agent/provider"
)

// Input is one image to animate
type Input struct {
	Index     int
	ImagePath string
	ImageURL  string // public URL, needed by providers that fetch the image themselves
	Prompt    string
	Seconds   float64
}

// Generator produces encoded MP4 bytes for one image
type Generator interface {
	Generate(ctx context.Context, in Input) ([]byte, error)
}

// Async drives a submit-and-poll provider through the generation poller
type Async struct {
	Source  poller.Source[Input]
	Options poller.Options
}

func (a Async) Generate(ctx context.Context, in Input) ([]byte, error) {
	return poller.Run(ctx, a.Source, in, a.Options)
}

// Deps are the shared collaborators clip generators are built from
type Deps struct {
	HTTPClient *http.Client
	Runner     ffmpeg.Runner
	FFmpegPath string
}

// New builds the generator selected by clips.provider
func New(cfg config.ClipsConfig, render config.RenderConfig, secrets config.Secrets, deps Deps) (Generator, error) {
	opts := poller.Options{Interval: cfg.PollInterval, MaxAttempts: cfg.MaxAttempts}
	switch cfg.Provider {
	case "stability", "":
		src := NewStability(cfg, secrets.StabilityKey, deps.HTTPClient)
		src.Runner, src.FFmpegPath = deps.Runner, deps.FFmpegPath
		return Async{Source: src, Options: opts}, nil
	case "ark":
		src, err := NewArk(cfg, secrets.ArkKey, deps.HTTPClient)
		if err != nil {
			return nil, err
		}
		return Async{Source: src, Options: opts}, nil
	case "kenburns":
		return &KenBurns{
			Runner:     deps.Runner,
			FFmpegPath: deps.FFmpegPath,
			Zoom:       cfg.ZoomFactor,
			FPS:        render.FPS,
			Width:      render.Width,
			Height:     render.Height,
		}, nil
	default:
		return nil, fmt.Errorf("unknown clips provider %q", cfg.Provider)
	}
}

// download fetches a finished clip from a provider-hosted URL
func download(ctx context.Context, client *http.Client, providerName, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, provider.Wrap(providerName, "download", err)
	}
	defer resp.Body.Close()
	if err := provider.Check(resp, providerName, "download"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Wrap(providerName, "download", err)
	}
	if len(data) == 0 {
		return nil, &provider.Error{Provider: providerName, Op: "download", Body: "empty clip"}
	}
	return data, nil
}
