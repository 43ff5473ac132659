package audio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-agent/config"
	"video-agent/provider"
)

func elevenCfg(base string) config.AudioConfig {
	return config.AudioConfig{
		BaseURL:         base,
		VoiceID:         "voice-1",
		ModelID:         "eleven_monolingual_v1",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Retries:         3,
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("xi-api-key"))

		var req ttsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello there.", req.Text)
		assert.Equal(t, "eleven_monolingual_v1", req.ModelID)
		assert.Equal(t, 0.75, req.VoiceSettings.SimilarityBoost)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	}))
	defer srv.Close()

	e := NewElevenLabs(elevenCfg(srv.URL), "key", srv.Client())
	data, err := e.Synthesize(context.Background(), "Hello there.")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3"), data)
}

func TestElevenLabsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	e := NewElevenLabs(elevenCfg(srv.URL), "key", srv.Client())
	e.backoff = time.Millisecond
	_, err := e.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestElevenLabsDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	e := NewElevenLabs(elevenCfg(srv.URL), "bad", srv.Client())
	e.backoff = time.Millisecond
	_, err := e.Synthesize(context.Background(), "hi")

	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

// toolRunner fakes edge-tts and ffmpeg by writing the requested output file.
type toolRunner struct {
	failFirst int
	calls     [][]string
}

func (r *toolRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.failFirst > 0 {
		r.failFirst--
		return nil, errors.New("exit status 1")
	}
	out := args[len(args)-1]
	for i, a := range args {
		if a == "--write-media" || a == "--output" {
			out = args[i+1]
		}
	}
	return nil, os.WriteFile(out, []byte(name+" output"), 0o644)
}

func TestCommandSynthesizerEdgeTTS(t *testing.T) {
	runner := &toolRunner{failFirst: 1}
	c := &CommandSynthesizer{Runner: runner, Command: "edge-tts", Voice: "en-US-GuyNeural", Retries: 3, backoff: time.Millisecond}

	data, err := c.Synthesize(context.Background(), "Hello.")
	require.NoError(t, err)
	assert.Equal(t, "edge-tts output", string(data))
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"edge-tts", "--voice", "en-US-GuyNeural", "--text", "Hello."}, runner.calls[1][:5])
}

func TestCommandSynthesizerScript(t *testing.T) {
	c := &CommandSynthesizer{Command: "tts.py"}
	name, args := c.invocation("hi", "/tmp/x.mp3")
	assert.Equal(t, "python3", name)
	assert.Equal(t, []string{"tts.py", "--text", "hi", "--output", "/tmp/x.mp3"}, args)
}

type echoSynth struct{ got []string }

func (e *echoSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	e.got = append(e.got, text)
	return []byte(text), nil
}

func TestChunkedJoinsPartsInOrder(t *testing.T) {
	inner := &echoSynth{}
	runner := &toolRunner{}
	c := &Chunked{Inner: inner, Runner: runner, MaxChars: 14}

	data, err := c.Synthesize(context.Background(), "One. Two two. Three three three.")
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg output", string(data))
	assert.Equal(t, []string{"One. Two two.", "Three three", "three."}, inner.got)

	require.Len(t, runner.calls, 1)
	assert.Contains(t, strings.Join(runner.calls[0], " "), "-f concat -safe 0")
}

func TestChunkedSingleChunkSkipsFFmpeg(t *testing.T) {
	runner := &toolRunner{}
	c := &Chunked{Inner: &echoSynth{}, Runner: runner, MaxChars: 100}
	data, err := c.Synthesize(context.Background(), "  short  ")
	require.NoError(t, err)
	assert.Equal(t, "short", string(data))
	assert.Empty(t, runner.calls)

	_, err = c.Synthesize(context.Background(), "   ")
	assert.Error(t, err)
}

func TestSplitTextKeepsNewlineBreaks(t *testing.T) {
	chunks := SplitText("First line\nSecond line", 12)
	assert.Equal(t, []string{"First line", "Second line"}, chunks)
	assert.Equal(t, []string{"whole"}, SplitText("whole", 0))
}
