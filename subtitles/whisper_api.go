package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"video-agent/config"
	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/provider"
	"video-agent/types"
)

// WhisperAPI transcribes audio with the OpenAI-compatible
// /audio/transcriptions endpoint.
type WhisperAPI struct {
	baseURL    string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

// NewWhisperAPI creates a transcription client
func NewWhisperAPI(cfg config.TranscriptionConfig, apiKey string, httpClient *http.Client) *WhisperAPI {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperAPI{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     apiKey,
		model:      model,
		language:   cfg.Language,
		httpClient: httpClient,
	}
}

// verboseJSON is the shared shape of the API's verbose_json response and the
// whisper CLI's JSON output.
type verboseJSON struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (v verboseJSON) transcript() *types.Transcript {
	segs := make([]types.TranscriptSegment, 0, len(v.Segments))
	for _, s := range v.Segments {
		segs = append(segs, types.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return &types.Transcript{FullText: strings.TrimSpace(v.Text), Segments: Normalize(segs)}
}

// mimeFromExt returns the MIME type for common audio extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/m4a"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// Transcribe uploads audioPath and returns time-coded segments
func (w *WhisperAPI) Transcribe(ctx context.Context, audioPath string) (tr *types.Transcript, err error) {
	defer func() { metrics.ObserveProvider("whisper", err) }()

	if w.apiKey == "" {
		return nil, &provider.Error{Provider: "whisper", Op: "transcribe", Err: provider.ErrMissingKey}
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeForm(mw, f, filepath.Base(audioPath), map[string]string{
			"model":                     w.model,
			"response_format":           "verbose_json",
			"language":                  w.language,
			"timestamp_granularities[]": "segment",
		})
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, provider.Wrap("whisper", "transcribe", err)
	}
	defer resp.Body.Close()

	if err := provider.Check(resp, "whisper", "transcribe"); err != nil {
		return nil, err
	}
	if writeErr := <-errCh; writeErr != nil {
		return nil, fmt.Errorf("multipart write error: %w", writeErr)
	}

	var parsed verboseJSON
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &provider.Error{Provider: "whisper", Op: "transcribe", Err: fmt.Errorf("decode response: %w", err)}
	}
	tr = parsed.transcript()
	logging.FromContext(ctx, "subtitles").Info().Int("segments", len(tr.Segments)).Msg("transcription ready")
	return tr, nil
}

func writeForm(mw *multipart.Writer, file io.Reader, filename string, fields map[string]string) error {
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", mimeFromExt(filepath.Ext(filename)))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
