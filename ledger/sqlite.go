package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"video-agent/types"
)

const schemaVersion = 1

// SQLite keeps one row per run, upserted on every write
type SQLite struct {
	DB *sql.DB
}

// NewSQLite opens (and migrates) the database at path
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger needs ledger.sqlite_path")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	s := &SQLite{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	cols := make([]string, 0, len(types.StatusFields))
	for _, f := range types.StatusFields {
		cols = append(cols, fmt.Sprintf("\t%s TEXT NOT NULL DEFAULT ''", f))
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
%s,
		updated_at TEXT NOT NULL
	);`, strings.Join(cols, ",\n"))

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) AppendOrUpdate(ctx context.Context, runID string, rec types.StatusRecord) error {
	n := len(types.StatusFields)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", n+2), ", ")
	updates := make([]string, 0, n+1)
	for _, f := range types.StatusFields {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", f, f))
	}
	updates = append(updates, "updated_at = excluded.updated_at")

	query := fmt.Sprintf(`
	INSERT INTO runs (run_id, %s, updated_at)
	VALUES (%s)
	ON CONFLICT(run_id) DO UPDATE SET
		%s`, strings.Join(types.StatusFields, ", "), placeholders, strings.Join(updates, ",\n\t\t"))

	args := make([]any, 0, n+2)
	args = append(args, runID)
	for _, f := range types.StatusFields {
		args = append(args, rec.Get(f))
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339))

	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite upsert %s: %w", runID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, runID string) (*types.StatusRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE run_id = ?`, strings.Join(types.StatusFields, ", "))
	vals := make([]string, len(types.StatusFields))
	dest := make([]any, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}
	err := s.DB.QueryRowContext(ctx, query, runID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := types.RecordFromRow(append([]string{runID}, vals...))
	return &rec, nil
}

func (s *SQLite) Close() error { return s.DB.Close() }
