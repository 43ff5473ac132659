package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-agent/ledger"
	"video-agent/types"
)

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("ledger:\n  backend: sqlite\n  sqlite_path: %s\npaths:\n  work: %s\n  logs: %s\n",
		dbPath, filepath.Join(dir, "work"), filepath.Join(dir, "logs"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		statusJSON = false
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedLedger(t *testing.T, dbPath string) {
	t.Helper()
	db, err := ledger.NewSQLite(dbPath)
	require.NoError(t, err)
	rec := types.NewStatusRecord("vid_20260101_000000_abcd1234")
	rec.Set(types.FieldState, "published")
	rec.Set(types.FieldPublishedURL, "https://www.youtube.com/watch?v=abc")
	require.NoError(t, db.AppendOrUpdate(context.Background(), rec.RunID, rec))
	require.NoError(t, db.Close())
}

func TestStatusPrintsLedgerRecord(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	seedLedger(t, db)
	cfgPath := writeConfig(t, db)

	out, err := execute(t, "--config", cfgPath, "status", "vid_20260101_000000_abcd1234")
	require.NoError(t, err)
	assert.Contains(t, out, "published_url")
	assert.Contains(t, out, "https://www.youtube.com/watch?v=abc")

	out, err = execute(t, "--config", cfgPath, "status", "--json", "vid_20260101_000000_abcd1234")
	require.NoError(t, err)
	var rec types.StatusRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "published", rec.Get(types.FieldState))
}

func TestStatusUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	seedLedger(t, db)

	_, err := execute(t, "--config", writeConfig(t, db), "status", "vid_missing")
	assert.ErrorContains(t, err, `no run "vid_missing"`)
}

func TestCreateNeedsATopicSource(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	_, err := execute(t, "--config", writeConfig(t, db), "create")
	assert.ErrorContains(t, err, "--topic")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clips:\n  provider: sora\n"), 0o644))

	_, err := execute(t, "--config", path, "status", "vid_1")
	assert.ErrorContains(t, err, "clips.provider")
}
