package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"video-agent/audio"
	"video-agent/clips"
	"video-agent/config"
	"video-agent/ffmpeg"
	"video-agent/ledger"
	"video-agent/llm"
	"video-agent/metadata"
	"video-agent/pipeline"
	"video-agent/provider"
	"video-agent/render"
	"video-agent/research"
	"video-agent/script"
	"video-agent/storage"
	"video-agent/subtitles"
	"video-agent/telemetry"
	"video-agent/upload"
	"video-agent/visuals"
)

// app holds everything a command needs, built once from config
type app struct {
	orchestrator *pipeline.Orchestrator
	ledger       ledger.Ledger
	tracing      *telemetry.Provider
}

// mediaTimeout bounds single provider calls that move media bytes
const mediaTimeout = 5 * time.Minute

// openLedger opens only the ledger, for commands that just read status
func openLedger(ctx context.Context, c *config.Config) (ledger.Ledger, error) {
	return ledger.New(ctx, c.Ledger, c.Secrets)
}

// build wires every stage collaborator from config
func build(ctx context.Context, c *config.Config) (*app, error) {
	secrets := c.Secrets

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:      c.Telemetry.Enabled,
		ServiceName:  "video-agent",
		Environment:  c.Telemetry.Environment,
		ExporterType: c.Telemetry.Exporter,
		Endpoint:     c.Telemetry.Endpoint,
		SamplingRate: c.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	httpClient := provider.NewHTTPClient(mediaTimeout)
	runner := ffmpeg.ExecRunner{Verbose: c.Render.Verbose}

	completer, err := llm.New(ctx, c.LLM, secrets, provider.NewHTTPClient(c.LLM.Timeout))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	speech, err := audio.New(c.Audio, secrets.ElevenLabsKey, httpClient, runner, c.Render.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	transcriber, err := subtitles.New(c.Transcription, secrets.OpenAIKey, httpClient, runner)
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}
	images, err := visuals.New(c.Images, secrets.TogetherKey, httpClient)
	if err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}
	clipGen, err := clips.New(c.Clips, c.Render, secrets, clips.Deps{
		HTTPClient: httpClient,
		Runner:     runner,
		FFmpegPath: c.Render.FFmpegPath,
	})
	if err != nil {
		return nil, fmt.Errorf("clips: %w", err)
	}
	store, err := storage.New(ctx, c.Storage, secrets.GoogleCredentials)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	var publisher upload.Publisher = upload.Disabled{}
	if c.Upload.Enabled {
		svc, err := upload.NewYouTubeService(ctx, secrets, httpClient)
		if err != nil {
			return nil, fmt.Errorf("youtube: %w", err)
		}
		publisher = upload.NewYouTube(svc, c.Upload)
	}

	led, err := openLedger(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	logDir := c.Upload.LogDir
	if logDir == "" {
		logDir = c.Paths.Logs
	}
	orch := pipeline.New(pipeline.Deps{
		Script:      script.New(completer, c.Script),
		Metadata:    metadata.New(completer, c.Metadata, c.Upload),
		Speech:      speech,
		Transcriber: transcriber,
		Prompts:     visuals.NewPromptDeriver(completer, c.Images.Style),
		Images:      images,
		Clips:       clipGen,
		Assembler:   render.New(runner, c.Render.FFmpegPath, c.Render.FFprobePath),
		Store:       store,
		Publisher:   publisher,
		Ledger:      led,
	}, pipeline.Options{
		WorkRoot:       c.Paths.Work,
		LogDir:         logDir,
		KeepWorkDir:    c.Pipeline.KeepWorkDir,
		MaxConcurrency: c.Pipeline.MaxConcurrency,
		MaxImages:      c.Images.Count,
		ImagesPerMin:   c.Images.RatePerMinute,
		ClipsPerMin:    c.Clips.RatePerMinute,
		Buckets: pipeline.Buckets{
			Audio: c.Storage.AudioBucket,
			Image: c.Storage.ImageBucket,
			Video: c.Storage.VideoBucket,
		},
		Assembly:      render.OptionsFromConfig(c.Render),
		DefaultFormat: c.Script.DefaultFormat,
	})

	return &app{orchestrator: orch, ledger: led, tracing: tracing}, nil
}

// newScraper builds the Reddit topic picker; used ids live next to the logs
func newScraper(c *config.Config) (*research.Scraper, error) {
	return research.New(c.Research, c.Secrets.RedditUserAgent,
		filepath.Join(c.Paths.Logs, "used_topics.json"), provider.NewHTTPClient(30*time.Second))
}

func (a *app) close(ctx context.Context) {
	if err := a.ledger.Close(); err != nil {
		logFor(ctx).Warn().Err(err).Msg("close ledger")
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		logFor(ctx).Warn().Err(err).Msg("flush traces")
	}
}
