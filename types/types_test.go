package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRecordRowOrder(t *testing.T) {
	rec := NewStatusRecord("vid_1")
	rec.Set(FieldNotes, "Successfully completed")
	rec.Set(FieldScriptStatus, "completed")
	rec.Set(FieldAudioURL, "https://storage.googleapis.com/a/vid_1/audio.mp3")

	row := rec.Row()
	require.Len(t, row, len(StatusFields)+1)
	assert.Equal(t, "vid_1", row[0])
	assert.Equal(t, "completed", row[1])
	assert.Equal(t, "https://storage.googleapis.com/a/vid_1/audio.mp3", row[2])
	assert.Equal(t, "Successfully completed", row[10])
}

func TestRecordFromShortRow(t *testing.T) {
	rec := RecordFromRow([]string{"vid_2", "completed"})
	assert.Equal(t, "vid_2", rec.RunID)
	assert.Equal(t, "completed", rec.Get(FieldScriptStatus))
	assert.Empty(t, rec.Get(FieldNotes))
}

func TestCloneIsIndependent(t *testing.T) {
	rec := NewStatusRecord("vid_3")
	rec.Set(FieldState, "init")
	cp := rec.Clone()
	cp.Set(FieldState, "done")
	assert.Equal(t, "init", rec.Get(FieldState))
}
