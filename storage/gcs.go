package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"video-agent/config"
	"video-agent/logging"
	"video-agent/metrics"
	"video-agent/provider"
)

// GCS stores objects in Google Cloud Storage through the JSON API
type GCS struct {
	svc        *gcs.Service
	publicBase string
	publicRead bool
}

// NewGCS creates a GCS store. Without a credentials file it uses
// application default credentials.
func NewGCS(ctx context.Context, cfg config.StorageConfig, credentialsFile string, opts ...option.ClientOption) (*GCS, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(gcs.DevstorageReadWriteScope))
	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	base := cfg.PublicBase
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return &GCS{svc: svc, publicBase: strings.TrimRight(base, "/"), publicRead: cfg.PublicRead}, nil
}

// Upload stores localPath at bucket/key and returns its public URL
func (g *GCS) Upload(ctx context.Context, bucket, localPath, key string) (u string, err error) {
	defer func() { metrics.ObserveProvider("gcs", err) }()

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	ct := contentType(localPath)
	call := g.svc.Objects.Insert(bucket, &gcs.Object{Name: key, ContentType: ct}).
		Media(f, googleapi.ContentType(ct)).
		Context(ctx)
	if g.publicRead {
		call = call.PredefinedAcl("publicRead")
	}
	obj, err := call.Do()
	if err != nil {
		return "", gcsError("upload", err)
	}

	u = g.publicURL(bucket, obj.Name)
	logging.FromContext(ctx, "storage").Debug().Str("bucket", bucket).Str("key", key).Msg("uploaded")
	return u, nil
}

// Download writes bucket/key to localPath atomically
func (g *GCS) Download(ctx context.Context, bucket, key, localPath string) (err error) {
	defer func() { metrics.ObserveProvider("gcs", err) }()

	resp, err := g.svc.Objects.Get(bucket, key).Context(ctx).Download()
	if err != nil {
		return gcsError("download", err)
	}
	defer resp.Body.Close()

	pf, err := renameio.NewPendingFile(localPath)
	if err != nil {
		return err
	}
	defer pf.Cleanup()
	if _, err := io.Copy(pf, resp.Body); err != nil {
		return provider.Wrap("gcs", "download", err)
	}
	return pf.CloseAtomicallyReplace()
}

func (g *GCS) publicURL(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/%s/%s", g.publicBase, bucket, strings.Join(parts, "/"))
}

func gcsError(op string, err error) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		return &provider.Error{Provider: "gcs", Op: op, StatusCode: gerr.Code, Body: gerr.Message}
	}
	return provider.Wrap("gcs", op, err)
}
