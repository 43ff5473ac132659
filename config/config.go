package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Script        ScriptConfig        `yaml:"script"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Images        ImagesConfig        `yaml:"images"`
	Clips         ClipsConfig         `yaml:"clips"`
	Render        RenderConfig        `yaml:"render"`
	Storage       StorageConfig       `yaml:"storage"`
	Upload        UploadConfig        `yaml:"upload"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Research      ResearchConfig      `yaml:"research"`
	Server        ServerConfig        `yaml:"server"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Paths         PathsConfig         `yaml:"paths"`
	Log           LogConfig           `yaml:"log"`

	Secrets Secrets `yaml:"-"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai | groq | gemini
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ScriptConfig struct {
	DefaultFormat  string `yaml:"default_format"`
	WordsPerMinute int    `yaml:"words_per_minute"`
}

type MetadataConfig struct {
	Enabled       bool `yaml:"enabled"`
	TitleMaxChars int  `yaml:"title_max_chars"`
	TagsCount     int  `yaml:"tags_count"`
}

type AudioConfig struct {
	Provider        string  `yaml:"provider"` // elevenlabs | command
	BaseURL         string  `yaml:"base_url"`
	VoiceID         string  `yaml:"voice_id"`
	ModelID         string  `yaml:"model_id"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Command         string  `yaml:"command"`
	Voice           string  `yaml:"voice"`
	Retries         int     `yaml:"retries"`
	MaxChars        int     `yaml:"max_chars"`
}

type TranscriptionConfig struct {
	Provider string `yaml:"provider"` // whisper-api | whisper-cli
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	CLIModel string `yaml:"cli_model"`
	Language string `yaml:"language"`
}

type ImagesConfig struct {
	Provider       string `yaml:"provider"` // together | pollinations
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Count          int    `yaml:"count"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	Steps          int    `yaml:"steps"`
	NegativePrompt string `yaml:"negative_prompt"`
	Style          string `yaml:"style"`
	RatePerMinute  int    `yaml:"rate_per_minute"`
}

type ClipsConfig struct {
	Provider       string        `yaml:"provider"` // stability | ark | kenburns
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	ClipSeconds    float64       `yaml:"clip_seconds"`
	CfgScale       float64       `yaml:"cfg_scale"`
	MotionBucketID int           `yaml:"motion_bucket_id"`
	ZoomFactor     float64       `yaml:"zoom_factor"`
	RatePerMinute  int           `yaml:"rate_per_minute"`
}

type CaptionConfig struct {
	FontFile     string  `yaml:"font_file"`
	FontSize     int     `yaml:"font_size"`
	FontColor    string  `yaml:"font_color"`
	BoxColor     string  `yaml:"box_color"`
	BoxBorder    int     `yaml:"box_border"`
	WidthRatio   float64 `yaml:"width_ratio"`
	MarginBottom int     `yaml:"margin_bottom"`
}

type RenderConfig struct {
	FFmpegPath    string        `yaml:"ffmpeg_path"`
	FFprobePath   string        `yaml:"ffprobe_path"`
	FPS           int           `yaml:"fps"`
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
	TransitionSec float64       `yaml:"transition_sec"`
	VideoCodec    string        `yaml:"video_codec"`
	AudioCodec    string        `yaml:"audio_codec"`
	AudioBitrate  string        `yaml:"audio_bitrate"`
	Preset        string        `yaml:"preset"`
	CRF           int           `yaml:"crf"`
	Captions      CaptionConfig `yaml:"captions"`
	Verbose       bool          `yaml:"verbose"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // gcs | local
	AudioBucket string `yaml:"audio_bucket"`
	ImageBucket string `yaml:"image_bucket"`
	VideoBucket string `yaml:"video_bucket"`
	LocalRoot   string `yaml:"local_root"`
	PublicBase  string `yaml:"public_base"`
	PublicRead  bool   `yaml:"public_read"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	DefaultLanguage   string `yaml:"default_language"`
	LogDir            string `yaml:"log_dir"`
}

type LedgerConfig struct {
	Backend       string `yaml:"backend"` // sheets | redis | sqlite | none
	SpreadsheetID string `yaml:"spreadsheet_id"`
	SheetRange    string `yaml:"sheet_range"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	SQLitePath    string `yaml:"sqlite_path"`
}

type PipelineConfig struct {
	MaxConcurrency int  `yaml:"max_concurrency"`
	KeepWorkDir    bool `yaml:"keep_work_dir"`
}

type ResearchConfig struct {
	Subreddits  []string `yaml:"subreddits"`
	TimeFilter  string   `yaml:"time_filter"`
	Limit       int      `yaml:"limit"`
	MinScore    int      `yaml:"min_score"`
	MinComments int      `yaml:"min_comments"`
}

type ServerConfig struct {
	Listen             string `yaml:"listen"`
	MaxRuns            int    `yaml:"max_runs"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // http | grpc
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

type PathsConfig struct {
	Work string `yaml:"work"`
	Logs string `yaml:"logs"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Secrets are read from the environment only, never from config.yaml
type Secrets struct {
	OpenAIKey         string
	GroqKey           string
	GeminiKey         string
	ElevenLabsKey     string
	TogetherKey       string
	StabilityKey      string
	ArkKey            string
	YouTubeClientID   string
	YouTubeSecret     string
	YouTubeRefresh    string
	GoogleCredentials string
	RedisPassword     string
	RedditUserAgent   string
}

// Default returns a config that runs with nothing but API keys set
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   2048,
			Timeout:     60 * time.Second,
		},
		Script: ScriptConfig{
			DefaultFormat:  "educational",
			WordsPerMinute: 150,
		},
		Metadata: MetadataConfig{
			Enabled:       true,
			TitleMaxChars: 100,
			TagsCount:     15,
		},
		Audio: AudioConfig{
			Provider:        "elevenlabs",
			BaseURL:         "https://api.elevenlabs.io",
			VoiceID:         "21m00Tcm4TlvDq8ikWAM",
			ModelID:         "eleven_monolingual_v1",
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Voice:           "en-US-GuyNeural",
			Retries:         3,
			MaxChars:        2500,
		},
		Transcription: TranscriptionConfig{
			Provider: "whisper-api",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "whisper-1",
			CLIModel: "base",
			Language: "en",
		},
		Images: ImagesConfig{
			Provider:       "together",
			BaseURL:        "https://api.together.xyz",
			Model:          "stabilityai/stable-diffusion-xl-base-1.0",
			Count:          10,
			Width:          1024,
			Height:         1024,
			Steps:          50,
			NegativePrompt: "blurry, low quality, distorted",
			Style:          "cinematic, dramatic lighting, photorealistic, no text, no watermark",
			RatePerMinute:  60,
		},
		Clips: ClipsConfig{
			Provider:       "stability",
			BaseURL:        "https://api.stability.ai",
			Model:          "doubao-seedance-1-0-pro-250528",
			PollInterval:   5 * time.Second,
			MaxAttempts:    60,
			ClipSeconds:    4,
			CfgScale:       1.8,
			MotionBucketID: 127,
			ZoomFactor:     1.15,
			RatePerMinute:  30,
		},
		Render: RenderConfig{
			FFmpegPath:    "ffmpeg",
			FFprobePath:   "ffprobe",
			FPS:           30,
			Width:         1080,
			Height:        1920,
			TransitionSec: 0.5,
			VideoCodec:    "libx264",
			AudioCodec:    "aac",
			AudioBitrate:  "192k",
			Preset:        "medium",
			CRF:           20,
			Captions: CaptionConfig{
				FontSize:     48,
				FontColor:    "white",
				BoxColor:     "black@0.6",
				BoxBorder:    16,
				WidthRatio:   0.8,
				MarginBottom: 160,
			},
		},
		Storage: StorageConfig{
			Backend:     "gcs",
			AudioBucket: "ai-video-audio-files",
			ImageBucket: "ai-video-image-files",
			VideoBucket: "ai-video-final-files",
			LocalRoot:   "output/storage",
			PublicRead:  true,
		},
		Upload: UploadConfig{
			Enabled:         true,
			Visibility:      "private",
			CategoryID:      "22",
			DefaultLanguage: "en",
			LogDir:          "logs",
		},
		Ledger: LedgerConfig{
			Backend:     "sqlite",
			SheetRange:  "Sheet1",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "video-agent:run:",
			SQLitePath:  "output/ledger.db",
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: 4,
		},
		Research: ResearchConfig{
			TimeFilter: "day",
			Limit:      25,
			MinScore:   100,
		},
		Server: ServerConfig{
			Listen:             ":8080",
			MaxRuns:            2,
			RateLimitPerMinute: 30,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 1.0,
			Environment:  "development",
		},
		Paths: PathsConfig{
			Work: "output/work",
			Logs: "logs",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads config.yaml over Default() and fills secrets from the environment.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	cfg.Secrets = LoadSecrets()
	return cfg, nil
}

// LoadSecrets reads API keys and credentials from the process environment
func LoadSecrets() Secrets {
	return Secrets{
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		GroqKey:           os.Getenv("GROQ_API_KEY"),
		GeminiKey:         os.Getenv("GEMINI_API_KEY"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		TogetherKey:       os.Getenv("TOGETHER_API_KEY"),
		StabilityKey:      os.Getenv("STABILITY_API_KEY"),
		ArkKey:            os.Getenv("ARK_API_KEY"),
		YouTubeClientID:   os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeSecret:     os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRefresh:    os.Getenv("YOUTUBE_REFRESH_TOKEN"),
		GoogleCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedditUserAgent:   os.Getenv("REDDIT_USER_AGENT"),
	}
}

// Validate reports every structural problem at once
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, got string, allowed ...string) {
		for _, a := range allowed {
			if got == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %v", field, got, allowed))
	}

	oneOf("llm.provider", c.LLM.Provider, "openai", "groq", "gemini")
	oneOf("audio.provider", c.Audio.Provider, "elevenlabs", "command")
	oneOf("transcription.provider", c.Transcription.Provider, "whisper-api", "whisper-cli")
	oneOf("images.provider", c.Images.Provider, "together", "pollinations")
	oneOf("clips.provider", c.Clips.Provider, "stability", "ark", "kenburns")
	oneOf("storage.backend", c.Storage.Backend, "gcs", "local")
	oneOf("ledger.backend", c.Ledger.Backend, "sheets", "redis", "sqlite", "none")
	oneOf("log.format", c.Log.Format, "json", "console")

	if c.Images.Count <= 0 {
		errs = append(errs, errors.New("images.count must be positive"))
	}
	if c.Clips.PollInterval <= 0 {
		errs = append(errs, errors.New("clips.poll_interval must be positive"))
	}
	if c.Clips.MaxAttempts <= 0 {
		errs = append(errs, errors.New("clips.max_attempts must be positive"))
	}
	if c.Render.FPS <= 0 {
		errs = append(errs, errors.New("render.fps must be positive"))
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		errs = append(errs, errors.New("render.width and render.height must be positive"))
	}
	if c.Render.TransitionSec < 0 {
		errs = append(errs, errors.New("render.transition_sec must not be negative"))
	}
	if r := c.Render.Captions.WidthRatio; r <= 0 || r > 1 {
		errs = append(errs, fmt.Errorf("render.captions.width_ratio %.2f out of (0,1]", r))
	}
	if c.Pipeline.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("pipeline.max_concurrency must be positive"))
	}
	if c.Ledger.Backend == "sheets" && c.Ledger.SpreadsheetID == "" {
		errs = append(errs, errors.New("ledger.spreadsheet_id is required for the sheets backend"))
	}
	if c.Storage.Backend == "gcs" && (c.Storage.AudioBucket == "" || c.Storage.ImageBucket == "" || c.Storage.VideoBucket == "") {
		errs = append(errs, errors.New("storage buckets are required for the gcs backend"))
	}
	if c.Paths.Work == "" {
		errs = append(errs, errors.New("paths.work is required"))
	}
	return errors.Join(errs...)
}
