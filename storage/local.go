package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Local keeps objects under root/<bucket>/<key>. Used for offline runs and
// tests.
type Local struct {
	root       string
	publicBase string
}

// NewLocal creates a filesystem store rooted at root
func NewLocal(root, publicBase string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage needs a root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

func (l *Local) path(bucket, key string) (string, error) {
	p := filepath.Join(l.root, bucket, filepath.FromSlash(key))
	if !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return p, nil
}

func (l *Local) Upload(ctx context.Context, bucket, localPath, key string) (string, error) {
	dst, err := l.path(bucket, key)
	if err != nil {
		return "", err
	}
	if err := copyAtomic(ctx, localPath, dst); err != nil {
		return "", err
	}
	if l.publicBase != "" {
		return l.publicBase + "/" + bucket + "/" + key, nil
	}
	return "file://" + filepath.ToSlash(dst), nil
}

func (l *Local) Download(ctx context.Context, bucket, key, localPath string) error {
	src, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	return copyAtomic(ctx, src, localPath)
}

func copyAtomic(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	pf, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup()
	if _, err := io.Copy(pf, in); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}
