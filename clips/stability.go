package clips

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"video-agent/config"
	"video-agent/ffmpeg"
	"video-agent/metrics"
	"video-agent/poller"
	"video-agent/provider"
	"video-agent/types"
)

// Stability frame sizes accepted by image-to-video
const (
	stabilityWidth  = 576
	stabilityHeight = 1024
)

// Stability is the Stability AI image-to-video job source
type Stability struct {
	baseURL        string
	apiKey         string
	cfgScale       float64
	motionBucketID int
	httpClient     *http.Client

	// Runner, when set, crops input images to a supported frame size first.
	Runner     ffmpeg.Runner
	FFmpegPath string
}

var _ poller.Source[Input] = (*Stability)(nil)

// NewStability creates a Stability job source
func NewStability(cfg config.ClipsConfig, apiKey string, httpClient *http.Client) *Stability {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.stability.ai"
	}
	return &Stability{
		baseURL:        strings.TrimRight(base, "/"),
		apiKey:         apiKey,
		cfgScale:       cfg.CfgScale,
		motionBucketID: cfg.MotionBucketID,
		httpClient:     httpClient,
	}
}

// Submit uploads the image and returns the generation id
func (s *Stability) Submit(ctx context.Context, in Input) (id string, err error) {
	defer func() { metrics.ObserveProvider("stability", err) }()

	if s.apiKey == "" {
		return "", &provider.Error{Provider: "stability", Op: "submit", Err: provider.ErrMissingKey}
	}

	imagePath, cleanup, err := s.prepare(ctx, in.ImagePath)
	if err != nil {
		return "", err
	}
	defer cleanup()

	img, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img); err != nil {
		return "", err
	}
	_ = mw.WriteField("cfg_scale", strconv.FormatFloat(s.cfgScale, 'f', -1, 64))
	_ = mw.WriteField("motion_bucket_id", strconv.Itoa(s.motionBucketID))
	_ = mw.WriteField("seed", "0")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2beta/image-to-video", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", provider.Wrap("stability", "submit", err)
	}
	defer resp.Body.Close()
	if err := provider.Check(resp, "stability", "submit"); err != nil {
		return "", err
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &provider.Error{Provider: "stability", Op: "submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.ID == "" {
		return "", &provider.Error{Provider: "stability", Op: "submit", Body: "no generation id returned"}
	}
	return parsed.ID, nil
}

// Poll checks a generation: 202 is pending, 200 carries the MP4
func (s *Stability) Poll(ctx context.Context, id string) (poller.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v2beta/image-to-video/result/"+url.PathEscape(id), nil)
	if err != nil {
		return poller.Status{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "video/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return poller.Status{}, provider.Wrap("stability", "poll", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted, resp.StatusCode == http.StatusTooManyRequests:
		return poller.Status{State: types.JobPending}, nil
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return poller.Status{}, provider.Wrap("stability", "poll", err)
		}
		return poller.Status{State: types.JobComplete, Result: data}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// the generation itself was rejected or expired
		err := provider.Check(resp, "stability", "poll")
		return poller.Status{State: types.JobFailed, Reason: err.Error()}, nil
	default:
		return poller.Status{}, provider.Check(resp, "stability", "poll")
	}
}

// prepare crops the image to a frame size the API accepts.
func (s *Stability) prepare(ctx context.Context, imagePath string) (string, func(), error) {
	noop := func() {}
	if s.Runner == nil {
		return imagePath, noop, nil
	}
	dir, err := os.MkdirTemp("", "stability-*")
	if err != nil {
		return "", noop, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	out := filepath.Join(dir, "frame.png")
	bin := s.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		stabilityWidth, stabilityHeight, stabilityWidth, stabilityHeight)
	args := append(ffmpeg.BaseArgs(), "-i", imagePath, "-vf", vf, "-frames:v", "1", out)
	if _, err := s.Runner.Run(ctx, bin, args...); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("crop image for stability: %w", err)
	}
	return out, cleanup, nil
}
