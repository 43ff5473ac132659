// Package storage uploads run artifacts to object storage and returns their
// public URLs.
package storage

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"video-agent/config"
)

// ObjectStore uploads and downloads objects by bucket and key
type ObjectStore interface {
	Upload(ctx context.Context, bucket, localPath, key string) (string, error)
	Download(ctx context.Context, bucket, key, localPath string) error
}

// AudioKey is the object key for a run's narration
func AudioKey(runID string) string {
	return runID + "/audio.mp3"
}

// ImageKey is the object key for a run's index-th still
func ImageKey(runID string, index int) string {
	return fmt.Sprintf("%s/images/image_%d.png", runID, index)
}

// VideoKey is the object key for a run's assembled video
func VideoKey(runID string) string {
	return runID + "/final_video.mp4"
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".png":
		return "image/png"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// New builds the store selected by storage.backend
func New(ctx context.Context, cfg config.StorageConfig, credentialsFile string) (ObjectStore, error) {
	switch cfg.Backend {
	case "gcs", "":
		return NewGCS(ctx, cfg, credentialsFile)
	case "local":
		return NewLocal(cfg.LocalRoot, cfg.PublicBase)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
