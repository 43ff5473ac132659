package render

import (
	"errors"
	"fmt"
	"math"
)

// Segment is one clip placed on the output timeline.
type Segment struct {
	Path     string
	Start    float64
	Duration float64
	FadeIn   float64
	FadeOut  float64 // zero on the last clip; the output fade covers it
}

// Timeline is the conformed plan for one assembly. Clips are faded through
// black and butted end to end, so the concatenated length is the plain sum of
// clip durations. Audio length always wins: a longer video is cut at
// Final, a shorter one holds its last frame for Pad seconds.
type Timeline struct {
	Segments      []Segment
	VideoDuration float64
	AudioDuration float64
	Pad           float64
	Final         float64
	OutroFade     float64
}

// Truncated reports whether video will be cut to fit the audio.
func (t Timeline) Truncated() bool {
	return t.VideoDuration > t.AudioDuration
}

// Plan lays out clips with the given durations against an audio track.
func Plan(paths []string, durations []float64, audio, transition float64) (Timeline, error) {
	if len(paths) == 0 {
		return Timeline{}, errors.New("no clips to assemble")
	}
	if len(paths) != len(durations) {
		return Timeline{}, fmt.Errorf("have %d clips but %d durations", len(paths), len(durations))
	}
	if audio <= 0 {
		return Timeline{}, fmt.Errorf("audio duration %.3f must be positive", audio)
	}
	if transition < 0 {
		return Timeline{}, fmt.Errorf("transition %.3f must not be negative", transition)
	}

	tl := Timeline{AudioDuration: audio, Final: audio}
	var cursor float64
	for i, d := range durations {
		if d <= 0 {
			return Timeline{}, fmt.Errorf("clip %d (%s) has non-positive duration %.3f", i, paths[i], d)
		}
		fade := math.Min(transition, d/2)
		seg := Segment{Path: paths[i], Start: cursor, Duration: d, FadeIn: fade, FadeOut: fade}
		if i == len(durations)-1 {
			seg.FadeOut = 0
		}
		tl.Segments = append(tl.Segments, seg)
		cursor += d
	}
	tl.VideoDuration = cursor
	if audio > cursor {
		tl.Pad = audio - cursor
	}
	tl.OutroFade = math.Min(transition, audio/2)
	return tl, nil
}
