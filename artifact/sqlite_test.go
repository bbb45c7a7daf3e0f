package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hubenschmidt/legalqa/core"
	"github.com/hubenschmidt/legalqa/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		SchemaVersion: SchemaVersion,
		ModelID:       "hash/3",
		Dim:           3,
		BuiltAt:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Documents: []kb.Record{
			{Text: "Section 420 IPC covers cheating.", Metadata: map[string]any{"section": "420", "year": json.Number("1860")}},
			{Text: "Section 302 IPC covers murder."},
		},
		Vectors: [][]float32{
			{0.1, -0.2, 0.3},
			{1, 0, -1.5},
		},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kb_index.db")
	want := sampleArtifact()

	require.NoError(t, Save(ctx, want, path))

	got, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	idx, err := got.Index()
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 3, idx.Dim())
}

func TestSaveLoad_EmptyCorpus(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.db")

	require.NoError(t, Save(ctx, &Artifact{ModelID: "ollama/all-minilm"}, path))

	got, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, got.Documents)
	assert.Empty(t, got.Vectors)
	assert.Equal(t, "ollama/all-minilm", got.ModelID)
	assert.Equal(t, 0, got.Dim)
}

func TestSave_OverwritesAndLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "kb_index.db")

	require.NoError(t, Save(ctx, sampleArtifact(), path))

	second := sampleArtifact()
	second.Documents = second.Documents[:1]
	second.Vectors = second.Vectors[:1]
	require.NoError(t, Save(ctx, second, path))

	got, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Len(t, got.Documents, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kb_index.db", entries[0].Name())
}

func TestSave_InvalidArtifactWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb_index.db")

	bad := sampleArtifact()
	bad.Vectors = bad.Vectors[:1]

	err := Save(context.Background(), bad, path)
	assert.ErrorIs(t, err, core.ErrPersistence)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	assert.ErrorIs(t, err, core.ErrArtifactNotFound)
	assert.NotErrorIs(t, err, core.ErrPersistence)
}

func TestLoad_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb_index.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not sqlite, it is a pickle"), 0o644))

	_, err := Load(context.Background(), path)
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestLoad_SchemaVersionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kb_index.db")
	require.NoError(t, Save(ctx, sampleArtifact(), path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE meta SET value = '99' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Load(ctx, path)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.Contains(t, err.Error(), "unsupported schema version 99")
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -3.25, 1e-7}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
