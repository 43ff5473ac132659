// Package subtitles transcribes narration into time-coded segments and
// writes them as SRT.
package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"video-agent/config"
	"video-agent/ffmpeg"
	"video-agent/logging"
	"video-agent/types"
)

// Transcriber turns an audio file into a transcript
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error)
}

// WhisperCLI runs the local openai-whisper command line tool
type WhisperCLI struct {
	Runner   ffmpeg.Runner
	Binary   string
	Model    string
	Language string
}

// Transcribe runs whisper with JSON output into a scratch directory and
// reads the segments back
func (w WhisperCLI) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	logger := logging.FromContext(ctx, "subtitles")

	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	bin := w.Binary
	if bin == "" {
		bin = "whisper"
	}
	model := w.Model
	if model == "" {
		model = "base"
	}
	args := []string{
		audioPath,
		"--model", model,
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if w.Language != "" {
		args = append(args, "--language", w.Language)
	}

	logger.Info().Str("model", model).Msg("running whisper")
	if _, err := w.Runner.Run(ctx, bin, args...); err != nil {
		return nil, fmt.Errorf("whisper failed: %w", err)
	}

	// whisper names its output after the input file
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	var parsed verboseJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}
	return parsed.transcript(), nil
}

// Normalize trims segment text, drops empty or inverted segments and sorts
// by start time
func Normalize(segs []types.TranscriptSegment) []types.TranscriptSegment {
	out := make([]types.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" || s.End <= s.Start {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// New builds the transcriber selected by transcription.provider
func New(cfg config.TranscriptionConfig, apiKey string, httpClient *http.Client, runner ffmpeg.Runner) (Transcriber, error) {
	switch cfg.Provider {
	case "whisper-api", "":
		return NewWhisperAPI(cfg, apiKey, httpClient), nil
	case "whisper-cli":
		return WhisperCLI{Runner: runner, Model: cfg.CLIModel, Language: cfg.Language}, nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}
