// Package ledger records human-readable run progress keyed by run id. The
// ledger is diagnostic: the pipeline never reads it back for control flow.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"video-agent/config"
	"video-agent/types"
)

// ErrNotFound is returned by Get for an unknown run id
var ErrNotFound = errors.New("ledger: run not found")

// Ledger stores one status record per run id. Writing the same record twice
// leaves the ledger observably unchanged.
type Ledger interface {
	AppendOrUpdate(ctx context.Context, runID string, rec types.StatusRecord) error
	Get(ctx context.Context, runID string) (*types.StatusRecord, error)
	Close() error
}

// Nop discards writes and never finds anything
type Nop struct{}

func (Nop) AppendOrUpdate(context.Context, string, types.StatusRecord) error { return nil }

func (Nop) Get(context.Context, string) (*types.StatusRecord, error) { return nil, ErrNotFound }

func (Nop) Close() error { return nil }

// New opens the ledger selected by ledger.backend
func New(ctx context.Context, cfg config.LedgerConfig, secrets config.Secrets) (Ledger, error) {
	switch cfg.Backend {
	case "sheets":
		return NewSheets(ctx, cfg, secrets.GoogleCredentials)
	case "redis":
		return NewRedis(ctx, cfg, secrets.RedisPassword)
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
