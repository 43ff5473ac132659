package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Prober reads media durations with ffprobe.
type Prober struct {
	Runner Runner
	Path   string // ffprobe binary, defaults to "ffprobe"
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the container duration of path in seconds.
func (p Prober) Duration(ctx context.Context, path string) (float64, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := p.Runner.Run(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q for %s: %w", parsed.Format.Duration, path, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("%s has non-positive duration %.3f", path, dur)
	}
	return dur, nil
}
