package audio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"video-agent/config"
	"video-agent/ffmpeg"
	"video-agent/logging"
	"video-agent/provider"
)

// Synthesizer turns text into encoded speech bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CommandSynthesizer runs a local TTS binary. Command may be "edge-tts", a
// python script, or any executable accepting --text and --output.
type CommandSynthesizer struct {
	Runner  ffmpeg.Runner
	Command string
	Voice   string
	Retries int
	backoff time.Duration
}

// NewCommand resolves the TTS command. When none is configured it falls
// back to edge-tts if it is on PATH.
func NewCommand(cfg config.AudioConfig, runner ffmpeg.Runner) (*CommandSynthesizer, error) {
	cmd := strings.TrimSpace(cfg.Command)
	if cmd == "" {
		cmd = os.Getenv("TTS_COMMAND")
	}
	if cmd == "" {
		if _, err := exec.LookPath("edge-tts"); err != nil {
			return nil, errors.New("no TTS engine found: set audio.command or TTS_COMMAND, or install edge-tts (pip install edge-tts)")
		}
		cmd = "edge-tts"
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "en-US-GuyNeural"
	}
	return &CommandSynthesizer{Runner: runner, Command: cmd, Voice: voice, Retries: cfg.Retries, backoff: 2 * time.Second}, nil
}

func (c *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	logger := logging.FromContext(ctx, "audio")

	dir, err := os.MkdirTemp("", "tts-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "speech.mp3")

	name, args := c.invocation(text, out)
	err = provider.Retry(ctx, c.Retries, c.backoff, func(attempt int) error {
		if _, err := c.Runner.Run(ctx, name, args...); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("TTS attempt failed")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tts %s: %w", c.Command, err)
	}
	return os.ReadFile(out)
}

func (c *CommandSynthesizer) invocation(text, out string) (string, []string) {
	switch {
	case c.Command == "edge-tts":
		return "edge-tts", []string{"--voice", c.Voice, "--text", text, "--write-media", out}
	case strings.HasSuffix(c.Command, ".py"):
		return "python3", []string{c.Command, "--text", text, "--output", out}
	default:
		return c.Command, []string{"--text", text, "--output", out}
	}
}

// Chunked splits long scripts into pieces a provider accepts, synthesizes
// them in order and joins the parts with ffmpeg's concat demuxer.
type Chunked struct {
	Inner      Synthesizer
	Runner     ffmpeg.Runner
	FFmpegPath string
	MaxChars   int
}

func (c *Chunked) Synthesize(ctx context.Context, text string) ([]byte, error) {
	chunks := SplitText(text, c.MaxChars)
	if len(chunks) == 0 {
		return nil, errors.New("audio: nothing to synthesize")
	}
	if len(chunks) == 1 {
		return c.Inner.Synthesize(ctx, chunks[0])
	}

	logging.FromContext(ctx, "audio").Info().Int("chunks", len(chunks)).Msg("synthesizing narration in parts")

	dir, err := os.MkdirTemp("", "tts-parts-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	var list strings.Builder
	for i, chunk := range chunks {
		data, err := c.Inner.Synthesize(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		part := filepath.Join(dir, fmt.Sprintf("part_%03d.mp3", i))
		if err := os.WriteFile(part, data, 0o644); err != nil {
			return nil, err
		}
		fmt.Fprintf(&list, "file '%s'\n", part)
	}

	listFile := filepath.Join(dir, "concat_list.txt")
	if err := os.WriteFile(listFile, []byte(list.String()), 0o644); err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "joined.mp3")
	bin := c.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	args := append(ffmpeg.BaseArgs(), "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", out)
	if _, err := c.Runner.Run(ctx, bin, args...); err != nil {
		return nil, fmt.Errorf("concatenate audio: %w", err)
	}
	return os.ReadFile(out)
}

// SplitText breaks text into chunks of at most maxChars, cutting at
// sentence ends where possible and at word boundaries otherwise.
// maxChars <= 0 disables splitting.
func SplitText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	add := func(piece string) {
		if cur.Len() > 0 && cur.Len()+1+len(piece) > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
	}

	for _, sentence := range sentences(text) {
		if len(sentence) <= maxChars {
			add(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			add(word)
		}
	}
	flush()
	return chunks
}

func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			if text[i] == '\n' || i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// New builds the synthesizer selected by audio.provider, wrapped so long
// scripts are split into parts.
func New(cfg config.AudioConfig, apiKey string, httpClient *http.Client, runner ffmpeg.Runner, ffmpegPath string) (Synthesizer, error) {
	var inner Synthesizer
	switch cfg.Provider {
	case "elevenlabs", "":
		inner = NewElevenLabs(cfg, apiKey, httpClient)
	case "command":
		cmd, err := NewCommand(cfg, runner)
		if err != nil {
			return nil, err
		}
		inner = cmd
	default:
		return nil, fmt.Errorf("unknown audio provider %q", cfg.Provider)
	}
	return &Chunked{Inner: inner, Runner: runner, FFmpegPath: ffmpegPath, MaxChars: cfg.MaxChars}, nil
}
