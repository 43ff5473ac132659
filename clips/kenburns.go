package clips

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"video-agent/ffmpeg"
	"video-agent/logging"
)

// KenBurns animates a still locally with a slow zoompan. It needs no API and
// serves as the offline fallback.
type KenBurns struct {
	Runner     ffmpeg.Runner
	FFmpegPath string
	Zoom       float64
	FPS        int
	Width      int
	Height     int
}

func (k *KenBurns) Generate(ctx context.Context, in Input) ([]byte, error) {
	dir, err := os.MkdirTemp("", "kenburns-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, fmt.Sprintf("kenburns_%03d.mp4", in.Index))
	bin := k.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	duration := in.Seconds
	if duration <= 0 {
		duration = 4
	}

	args := append(ffmpeg.BaseArgs(),
		"-loop", "1",
		"-i", in.ImagePath,
		"-vf", k.filter(duration),
		"-t", ffmpeg.Seconds(duration),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-an",
		out,
	)

	logging.FromContext(ctx, "clips").Debug().Int("index", in.Index).Msg("rendering ken burns clip")
	if _, err := k.Runner.Run(ctx, bin, args...); err != nil {
		return nil, fmt.Errorf("ffmpeg ken burns: %w", err)
	}
	return os.ReadFile(out)
}

// filter zooms from 1.0 to Zoom over the clip. The image is upscaled first so
// the pan stays smooth.
func (k *KenBurns) filter(duration float64) string {
	zoom := k.Zoom
	if zoom <= 1 {
		zoom = 1.15
	}
	fps, w, h := k.FPS, k.Width, k.Height
	if fps <= 0 {
		fps = 30
	}
	if w <= 0 || h <= 0 {
		w, h = 1080, 1920
	}
	frames := max(int(duration*float64(fps)), 1)
	step := (zoom - 1.0) / float64(frames)
	return fmt.Sprintf(
		"scale=%d:%d,zoompan=z='min(zoom+%.6f,%.3f)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d",
		w*2, h*2, step, zoom, frames, w, h, fps,
	)
}
