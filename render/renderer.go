package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"video-agent/config"
	"video-agent/ffmpeg"
	"video-agent/logging"
	"video-agent/types"
)

// AssemblyError wraps any failure while composing the final video.
type AssemblyError struct {
	Step string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly %s: %v", e.Step, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// Assembler composes clips, narration and captions into one mp4
type Assembler struct {
	runner ffmpeg.Runner
	prober ffmpeg.Prober
	ffmpeg string
}

// New creates an Assembler. Empty binary paths default to ffmpeg and ffprobe.
func New(runner ffmpeg.Runner, ffmpegPath, ffprobePath string) *Assembler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Assembler{
		runner: runner,
		prober: ffmpeg.Prober{Runner: runner, Path: ffprobePath},
		ffmpeg: ffmpegPath,
	}
}

// DefaultOptions fills unset encoding options.
func DefaultOptions(o types.AssemblyOptions) types.AssemblyOptions {
	if o.FPS <= 0 {
		o.FPS = 30
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 1080, 1920
	}
	if o.VideoCodec == "" {
		o.VideoCodec = "libx264"
	}
	if o.AudioCodec == "" {
		o.AudioCodec = "aac"
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = "192k"
	}
	if o.Preset == "" {
		o.Preset = "medium"
	}
	if o.CRF <= 0 {
		o.CRF = 20
	}
	c := &o.Captions
	if c.FontSize <= 0 {
		c.FontSize = 48
	}
	if c.FontColor == "" {
		c.FontColor = "white"
	}
	if c.BoxColor == "" {
		c.BoxColor = "black@0.6"
	}
	if c.WidthRatio <= 0 {
		c.WidthRatio = 0.8
	}
	return o
}

// OptionsFromConfig maps the render section of config.yaml to assembly options
func OptionsFromConfig(c config.RenderConfig) types.AssemblyOptions {
	return DefaultOptions(types.AssemblyOptions{
		TransitionDuration: c.TransitionSec,
		FPS:                c.FPS,
		Width:              c.Width,
		Height:             c.Height,
		VideoCodec:         c.VideoCodec,
		AudioCodec:         c.AudioCodec,
		AudioBitrate:       c.AudioBitrate,
		Preset:             c.Preset,
		CRF:                c.CRF,
		Captions: types.CaptionStyle{
			FontFile:     c.Captions.FontFile,
			FontSize:     c.Captions.FontSize,
			FontColor:    c.Captions.FontColor,
			BoxColor:     c.Captions.BoxColor,
			BoxBorder:    c.Captions.BoxBorder,
			WidthRatio:   c.Captions.WidthRatio,
			MarginBottom: c.Captions.MarginBottom,
		},
	})
}

// Assemble writes spec.OutputPath or fails leaving nothing behind at that path.
func (a *Assembler) Assemble(ctx context.Context, spec types.AssemblySpec) (string, error) {
	logger := logging.FromContext(ctx, "render")
	if err := validate(spec); err != nil {
		return "", &AssemblyError{Step: "validate", Err: err}
	}
	opts := DefaultOptions(spec.Options)

	durations := make([]float64, len(spec.Clips))
	for i, clip := range spec.Clips {
		d, err := a.prober.Duration(ctx, clip)
		if err != nil {
			return "", &AssemblyError{Step: "probe clips", Err: err}
		}
		durations[i] = d
	}
	audioDur, err := a.prober.Duration(ctx, spec.Audio)
	if err != nil {
		return "", &AssemblyError{Step: "probe audio", Err: err}
	}

	tl, err := Plan(spec.Clips, durations, audioDur, opts.TransitionDuration)
	if err != nil {
		return "", &AssemblyError{Step: "plan", Err: err}
	}
	logger.Info().
		Int("clips", len(spec.Clips)).
		Float64("video_sec", tl.VideoDuration).
		Float64("audio_sec", tl.AudioDuration).
		Float64("pad_sec", tl.Pad).
		Bool("truncated", tl.Truncated()).
		Msg("timeline planned")

	outDir := filepath.Dir(spec.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &AssemblyError{Step: "prepare", Err: err}
	}
	scratch, err := os.MkdirTemp(outDir, ".captions-")
	if err != nil {
		return "", &AssemblyError{Step: "prepare", Err: err}
	}
	defer os.RemoveAll(scratch)

	var track CaptionTrack
	if spec.Transcript != nil {
		track = NewCaptionTrack(spec.Transcript.Segments, tl.Final)
	}
	cues := track.Cues()
	maxChars := CharsPerLine(opts.Width, opts.Captions.WidthRatio, opts.Captions.FontSize)
	files := make([]string, len(cues))
	for i, c := range cues {
		files[i] = filepath.Join(scratch, fmt.Sprintf("cue_%04d.txt", i))
		text := strings.Join(Wrap(c.Text, maxChars), "\n")
		if err := os.WriteFile(files[i], []byte(text), 0o644); err != nil {
			return "", &AssemblyError{Step: "captions", Err: err}
		}
	}

	// ffmpeg writes into the pending file, which only replaces OutputPath
	// once the result has been verified
	pending, err := renameio.NewPendingFile(spec.OutputPath,
		renameio.WithTempDir(outDir), renameio.WithPermissions(0o644))
	if err != nil {
		return "", &AssemblyError{Step: "prepare", Err: err}
	}
	defer pending.Cleanup()

	args := buildArgs(encodeJob{
		Timeline: tl,
		Audio:    spec.Audio,
		Cues:     cues,
		CueFiles: files,
		Options:  opts,
		Output:   pending.Name(),
	})

	if _, err := a.runner.Run(ctx, a.ffmpeg, args...); err != nil {
		return "", &AssemblyError{Step: "encode", Err: err}
	}

	got, err := a.prober.Duration(ctx, pending.Name())
	if err != nil {
		return "", &AssemblyError{Step: "verify", Err: err}
	}
	if tol := verifyTolerance(opts.FPS); math.Abs(got-tl.Final) > tol {
		return "", &AssemblyError{Step: "verify", Err: fmt.Errorf(
			"encoded %.3fs, want %.3fs (tolerance %.3fs)", got, tl.Final, tol)}
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", &AssemblyError{Step: "finalize", Err: err}
	}

	logger.Info().Str("output", spec.OutputPath).Float64("duration_sec", got).Int("captions", len(cues)).Msg("video assembled")
	return spec.OutputPath, nil
}

// verifyTolerance allows one frame of drift plus AAC encoder padding
func verifyTolerance(fps int) float64 {
	return 1/float64(fps) + 0.05
}

func validate(spec types.AssemblySpec) error {
	switch {
	case len(spec.Clips) == 0:
		return errors.New("no clips")
	case spec.Audio == "":
		return errors.New("no audio track")
	case spec.OutputPath == "":
		return errors.New("no output path")
	}
	return nil
}
