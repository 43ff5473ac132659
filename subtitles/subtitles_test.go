package subtitles

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-agent/config"
	"video-agent/provider"
	"video-agent/types"
)

const verboseResponse = `{
  "text": "Owls hunt at night. They are silent.",
  "segments": [
    {"id": 1, "start": 2.4, "end": 4.1, "text": " They are silent."},
    {"id": 0, "start": 0.0, "end": 2.4, "text": " Owls hunt at night."},
    {"id": 2, "start": 4.1, "end": 4.1, "text": " "}
  ]
}`

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3 fake mp3"), 0o644))
	return path
}

func TestWhisperAPITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "audio.mp3", hdr.Filename)
		assert.Equal(t, "ID3 fake mp3", string(data))

		_, _ = w.Write([]byte(verboseResponse))
	}))
	defer srv.Close()

	api := NewWhisperAPI(config.TranscriptionConfig{BaseURL: srv.URL, Language: "en"}, "sk", srv.Client())
	tr, err := api.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)

	assert.Equal(t, "Owls hunt at night. They are silent.", tr.FullText)
	require.Len(t, tr.Segments, 2)
	assert.Equal(t, types.TranscriptSegment{Start: 0, End: 2.4, Text: "Owls hunt at night."}, tr.Segments[0])
	assert.Equal(t, "They are silent.", tr.Segments[1].Text)
}

func TestWhisperAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, `{"error":{"message":"file too large"}}`, http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	api := NewWhisperAPI(config.TranscriptionConfig{BaseURL: srv.URL}, "sk", srv.Client())
	_, err := api.Transcribe(context.Background(), writeAudio(t))

	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusRequestEntityTooLarge, pe.StatusCode)
	assert.Contains(t, pe.Body, "file too large")
}

// whisperRunner writes the JSON file the whisper CLI would produce.
type whisperRunner struct{ args []string }

func (w *whisperRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	w.args = append([]string{name}, args...)
	var outDir string
	for i, a := range args {
		if a == "--output_dir" {
			outDir = args[i+1]
		}
	}
	base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	return nil, os.WriteFile(filepath.Join(outDir, base+".json"), []byte(verboseResponse), 0o644)
}

func TestWhisperCLITranscribe(t *testing.T) {
	runner := &whisperRunner{}
	cli := WhisperCLI{Runner: runner, Model: "small", Language: "en"}

	tr, err := cli.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	require.Len(t, tr.Segments, 2)
	assert.Equal(t, "whisper", runner.args[0])
	assert.Contains(t, strings.Join(runner.args, " "), "--model small --output_format json")
}

func TestWriteSRT(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteSRT(&sb, []types.TranscriptSegment{
		{Start: 0, End: 2.4, Text: "Owls hunt at night."},
		{Start: 3661.5, End: 3662, Text: "Late."},
	}))
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,400\nOwls hunt at night.\n\n"+
		"2\n01:01:01,500 --> 01:01:02,000\nLate.\n\n", sb.String())
}

func TestSaveAndValidateSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.srt")
	require.NoError(t, SaveSRT(path, &types.Transcript{Segments: []types.TranscriptSegment{{Start: 1, End: 2, Text: "hi"}}}))
	require.NoError(t, ValidateSRT(path))

	empty := filepath.Join(t.TempDir(), "empty.srt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Error(t, ValidateSRT(empty))
}
