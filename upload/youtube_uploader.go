package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-agent/config"
	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/provider"
)

// Publisher uploads a finished video to a platform and returns its public URL
type Publisher interface {
	Publish(ctx context.Context, localPath, title, description string, tags []string) (string, error)
}

// YouTube publishes through the Data API v3
type YouTube struct {
	svc *youtube.Service
	cfg config.UploadConfig
}

// NewYouTube wraps an authenticated service
func NewYouTube(svc *youtube.Service, cfg config.UploadConfig) *YouTube {
	return &YouTube{svc: svc, cfg: cfg}
}

// NewYouTubeService builds a Data API client from the refresh token in secrets
func NewYouTubeService(ctx context.Context, secrets config.Secrets, base *http.Client) (*youtube.Service, error) {
	client, err := OAuthClient(ctx, secrets, google.Endpoint, base)
	if err != nil {
		return nil, fmt.Errorf("youtube auth: %w", err)
	}
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// OAuthClient exchanges the stored refresh token for access tokens on demand.
// base carries timeouts and transport settings for both token and API calls.
func OAuthClient(ctx context.Context, secrets config.Secrets, endpoint oauth2.Endpoint, base *http.Client) (*http.Client, error) {
	if secrets.YouTubeClientID == "" || secrets.YouTubeSecret == "" || secrets.YouTubeRefresh == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set: %w", provider.ErrMissingKey)
	}

	conf := &oauth2.Config{
		ClientID:     secrets.YouTubeClientID,
		ClientSecret: secrets.YouTubeSecret,
		Endpoint:     endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: secrets.YouTubeRefresh,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

// Publish uploads localPath with the configured privacy status and category
func (y *YouTube) Publish(ctx context.Context, localPath, title, description string, tags []string) (u string, err error) {
	log := logging.FromContext(ctx, "upload")
	defer func() { metrics.ObserveProvider("youtube", err) }()

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil {
		log.Info().Str("title", title).Float64("size_mb", float64(fi.Size())/1024/1024).Msg("uploading to youtube")
	}

	privacy := y.cfg.Visibility
	if privacy == "" {
		privacy = "private"
	}
	category := y.cfg.CategoryID
	if category == "" {
		category = "22"
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                title,
			Description:          description,
			Tags:                 tags,
			CategoryId:           category,
			DefaultLanguage:      y.cfg.DefaultLanguage,
			DefaultAudioLanguage: y.cfg.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           privacy,
			SelfDeclaredMadeForKids: y.cfg.MadeForKids,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	call := y.svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(y.cfg.NotifySubscribers).
		Media(f, googleapi.ContentType("video/mp4")).
		Context(ctx)
	uploaded, err := call.Do()
	if err != nil {
		if gerr, ok := err.(*googleapi.Error); ok {
			return "", &provider.Error{Provider: "youtube", Op: "videos.insert", StatusCode: gerr.Code, Body: gerr.Message}
		}
		return "", provider.Wrap("youtube", "videos.insert", err)
	}

	u = "https://www.youtube.com/watch?v=" + uploaded.Id
	log.Info().Str("video_id", uploaded.Id).Str("url", u).Msg("uploaded")
	return u, nil
}

// Entry is the upload record written next to the run logs
type Entry struct {
	RunID      string `json:"run_id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	VideoFile  string `json:"video_file"`
	UploadedAt string `json:"uploaded_at"`
}

// LogUpload saves the upload result to dir/upload_<run_id>.json
func LogUpload(dir string, e Entry) (string, error) {
	if e.UploadedAt == "" {
		e.UploadedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("upload_%s.json", e.RunID))
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Disabled stands in when upload.enabled is false. It returns an empty URL and
// the pipeline records the final video's storage URL instead.
type Disabled struct{}

func (Disabled) Publish(context.Context, string, string, string, []string) (string, error) {
	return "", nil
}
