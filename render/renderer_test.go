package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-agent/types"
)

// fakeMedia answers ffprobe from a duration table and "encodes" by writing
// the last argument.
type fakeMedia struct {
	mu        sync.Mutex
	durations map[string]float64
	encodeErr error
	encodes   [][]string
}

func (f *fakeMedia) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := args[len(args)-1]
	if name == "ffprobe" {
		d, ok := f.durations[target]
		if !ok {
			return nil, fmt.Errorf("no such file %s", target)
		}
		return []byte(fmt.Sprintf(`{"format":{"duration":"%f"}}`, d)), nil
	}
	f.encodes = append(f.encodes, args)
	if f.encodeErr != nil {
		_ = os.WriteFile(target, []byte("half-written"), 0o644)
		return nil, f.encodeErr
	}
	if err := os.WriteFile(target, []byte("mp4"), 0o644); err != nil {
		return nil, err
	}
	f.durations[target] = f.durations["__audio"]
	return nil, nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestPlanAudioGovernsWhenVideoLonger(t *testing.T) {
	tl, err := Plan([]string{"a", "b", "c"}, []float64{4, 4, 4}, 11, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 12.0, tl.VideoDuration)
	assert.Equal(t, 11.0, tl.Final)
	assert.Zero(t, tl.Pad)
	assert.True(t, tl.Truncated())
	require.Len(t, tl.Segments, 3)
	assert.Equal(t, 8.0, tl.Segments[2].Start)
	assert.Equal(t, 0.5, tl.Segments[0].FadeIn)
	assert.Equal(t, 0.5, tl.Segments[1].FadeOut)
	assert.Zero(t, tl.Segments[2].FadeOut)
	assert.Equal(t, 0.5, tl.OutroFade)
}

func TestPlanFreezesLastFrameWhenVideoShorter(t *testing.T) {
	tl, err := Plan([]string{"a", "b"}, []float64{2, 2}, 6.5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 6.5, tl.Final)
	assert.InDelta(t, 2.5, tl.Pad, 1e-9)
	assert.False(t, tl.Truncated())
}

func TestPlanClampsFadeToHalfClip(t *testing.T) {
	tl, err := Plan([]string{"a"}, []float64{0.6}, 0.6, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, tl.Segments[0].FadeIn, 1e-9)
}

func TestPlanRejectsBadInput(t *testing.T) {
	_, err := Plan(nil, nil, 10, 0.5)
	require.Error(t, err)
	_, err = Plan([]string{"a"}, []float64{0}, 10, 0.5)
	require.Error(t, err)
	_, err = Plan([]string{"a"}, []float64{3}, 0, 0.5)
	require.Error(t, err)
}

func TestCaptionVisibleOnHalfOpenInterval(t *testing.T) {
	track := NewCaptionTrack([]types.TranscriptSegment{{Start: 2.0, End: 4.5, Text: "X"}}, 0)

	assert.Empty(t, track.ActiveAt(1.9))
	assert.Len(t, track.ActiveAt(2.0), 1)
	assert.Len(t, track.ActiveAt(4.49), 1)
	assert.Empty(t, track.ActiveAt(4.5))
	assert.Equal(t, "gte(t,2.000)*lt(t,4.500)", enableExpr(track.Cues()[0]))
}

func TestCaptionTrackOrderAndFiltering(t *testing.T) {
	track := NewCaptionTrack([]types.TranscriptSegment{
		{Start: 3, End: 6, Text: "second"},
		{Start: 1, End: 4, Text: "first"},
		{Start: 5, End: 5, Text: "empty interval"},
		{Start: 7, End: 8, Text: "   "},
		{Start: 9, End: 12, Text: "clipped"},
		{Start: 12, End: 13, Text: "past the end"},
	}, 10)

	cues := track.Cues()
	require.Len(t, cues, 3)
	assert.Equal(t, "first", cues[0].Text)
	assert.Equal(t, 10.0, cues[2].End)

	active := track.ActiveAt(3.5)
	require.Len(t, active, 2)
	assert.Equal(t, "second", active[1].Text, "later cue drawn on top")
}

func TestWrap(t *testing.T) {
	lines := Wrap("the quick brown fox jumps over the lazy dog", 10)
	assert.Equal(t, []string{"the quick", "brown fox", "jumps over", "the lazy", "dog"}, lines)
	assert.Equal(t, []string{"supercalifragilistic"}, Wrap("supercalifragilistic", 5))
}

func TestCharsPerLine(t *testing.T) {
	assert.Equal(t, 32, CharsPerLine(1080, 0.8, 48))
	assert.Equal(t, 8, CharsPerLine(100, 0.8, 48))
}

func TestAssembleThreeClipsElevenSecondAudio(t *testing.T) {
	dir := t.TempDir()
	media := &fakeMedia{durations: map[string]float64{
		"c0.mp4": 4, "c1.mp4": 4, "c2.mp4": 4, "narration.mp3": 11, "__audio": 11,
	}}
	out := filepath.Join(dir, "final_video.mp4")

	got, err := New(media, "", "").Assemble(context.Background(), types.AssemblySpec{
		Clips: []string{"c0.mp4", "c1.mp4", "c2.mp4"},
		Audio: "narration.mp3",
		Transcript: &types.Transcript{Segments: []types.TranscriptSegment{
			{Start: 2.0, End: 4.5, Text: "X"},
		}},
		OutputPath: out,
		Options:    types.AssemblyOptions{TransitionDuration: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, out, got)
	assert.FileExists(t, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "pending output and caption scratch are removed")

	require.Len(t, media.encodes, 1)
	args := media.encodes[0]
	assert.Equal(t, "11.000", argAfter(args, "-t"))
	assert.Equal(t, "30", argAfter(args, "-r"))
	assert.Equal(t, "libx264", argAfter(args, "-c:v"))
	assert.Equal(t, "aac", argAfter(args, "-c:a"))
	assert.Equal(t, "3:a:0", args[indexOf(args, "-map")+3])

	graph := argAfter(args, "-filter_complex")
	assert.Contains(t, graph, "concat=n=3:v=1:a=0[vcat]")
	assert.Contains(t, graph, "trim=duration=11.000")
	assert.NotContains(t, graph, "tpad")
	assert.Contains(t, graph, "enable='gte(t,2.000)*lt(t,4.500)'")
	assert.Contains(t, graph, "x=(w-text_w)/2")
	assert.Contains(t, graph, "box=1")
	assert.Equal(t, 2, strings.Count(graph, "fade=t=out:st=3.500:d=0.500"))
}

func TestAssemblePadsShortVideo(t *testing.T) {
	dir := t.TempDir()
	media := &fakeMedia{durations: map[string]float64{"c0.mp4": 3, "narration.mp3": 5, "__audio": 5}}
	_, err := New(media, "", "").Assemble(context.Background(), types.AssemblySpec{
		Clips:      []string{"c0.mp4"},
		Audio:      "narration.mp3",
		OutputPath: filepath.Join(dir, "out.mp4"),
	})
	require.NoError(t, err)
	graph := argAfter(media.encodes[0], "-filter_complex")
	assert.Contains(t, graph, "tpad=stop_mode=clone:stop_duration=2.000")
}

func TestAssembleFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	media := &fakeMedia{
		durations: map[string]float64{"c0.mp4": 4, "narration.mp3": 4},
		encodeErr: errors.New("exit status 1"),
	}
	out := filepath.Join(dir, "final_video.mp4")
	_, err := New(media, "", "").Assemble(context.Background(), types.AssemblySpec{
		Clips:      []string{"c0.mp4"},
		Audio:      "narration.mp3",
		OutputPath: out,
	})

	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "encode", ae.Step)
	assert.NoFileExists(t, out)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestAssembleRejectsWrongEncodedDuration(t *testing.T) {
	dir := t.TempDir()
	media := &fakeMedia{durations: map[string]float64{
		"c0.mp4": 4, "c1.mp4": 4, "narration.mp3": 8,
		"__audio": 6.5, // encoder stopped early
	}}
	out := filepath.Join(dir, "final_video.mp4")
	_, err := New(media, "", "").Assemble(context.Background(), types.AssemblySpec{
		Clips:      []string{"c0.mp4", "c1.mp4"},
		Audio:      "narration.mp3",
		OutputPath: out,
	})

	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "verify", ae.Step)
	assert.ErrorContains(t, err, "want 8.000s")
	assert.NoFileExists(t, out)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "pending output is cleaned up")
}

func TestAssembleAcceptsOneFrameOfDrift(t *testing.T) {
	media := &fakeMedia{durations: map[string]float64{
		"c0.mp4": 4, "narration.mp3": 4, "__audio": 4.03,
	}}
	out := filepath.Join(t.TempDir(), "final_video.mp4")
	_, err := New(media, "", "").Assemble(context.Background(), types.AssemblySpec{
		Clips:      []string{"c0.mp4"},
		Audio:      "narration.mp3",
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestAssembleProbeFailure(t *testing.T) {
	media := &fakeMedia{durations: map[string]float64{"narration.mp3": 4}}
	_, err := New(media, "", "").Assemble(context.Background(), types.AssemblySpec{
		Clips:      []string{"missing.mp4"},
		Audio:      "narration.mp3",
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
	})
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "probe clips", ae.Step)
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}
