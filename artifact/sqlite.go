package artifact

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hubenschmidt/legalqa/core"
	"github.com/hubenschmidt/legalqa/kb"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Save writes a to dest atomically: the database is built in a temp file
// next to dest and renamed over it only once complete.
func Save(ctx context.Context, a *Artifact, dest string) (err error) {
	fail := func(err error) error {
		return core.WithPath(core.NewOpError("save artifact", core.ErrPersistence, err), dest)
	}

	if err := a.Validate(); err != nil {
		return fail(err)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("create directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fail(fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
			os.Remove(tmpPath + "-journal")
		}
	}()

	if err := write(ctx, a, tmpPath); err != nil {
		return fail(err)
	}
	if err := syncFile(tmpPath); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fail(fmt.Errorf("rename into place: %w", err))
	}
	return nil
}

func write(ctx context.Context, a *Artifact, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	builtAt := a.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}
	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"model_id":       a.ModelID,
		"dim":            strconv.Itoa(a.Dim),
		"count":          strconv.Itoa(len(a.Documents)),
		"built_at":       builtAt.Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	for i, doc := range a.Documents {
		metadata := []byte("{}")
		if len(doc.Metadata) > 0 {
			if metadata, err = json.Marshal(doc.Metadata); err != nil {
				return fmt.Errorf("marshal metadata %d: %w", i, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents (ordinal, text, metadata) VALUES (?, ?, ?)`,
			i, doc.Text, string(metadata)); err != nil {
			return fmt.Errorf("insert document %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO vectors (ordinal, embedding) VALUES (?, ?)`,
			i, encodeVector(a.Vectors[i])); err != nil {
			return fmt.Errorf("insert vector %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return db.Close()
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open for sync: %w", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// Load reads the artifact at path. A missing file is core.ErrArtifactNotFound;
// anything unreadable or inconsistent is core.ErrPersistence.
func Load(ctx context.Context, path string) (*Artifact, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, core.WithPath(core.NewOpError("load artifact", core.ErrArtifactNotFound, nil), path)
	}

	a, err := read(ctx, path)
	if err != nil {
		return nil, core.WithPath(core.NewOpError("load artifact", core.ErrPersistence, err), path)
	}
	return a, nil
}

func read(ctx context.Context, path string) (*Artifact, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}

	version, err := strconv.Atoi(meta["schema_version"])
	if err != nil {
		return nil, fmt.Errorf("invalid schema_version %q", meta["schema_version"])
	}
	if version != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d, want %d", version, SchemaVersion)
	}

	a := &Artifact{SchemaVersion: version, ModelID: meta["model_id"]}
	if a.Dim, err = strconv.Atoi(meta["dim"]); err != nil {
		return nil, fmt.Errorf("invalid dim %q", meta["dim"])
	}
	count, err := strconv.Atoi(meta["count"])
	if err != nil {
		return nil, fmt.Errorf("invalid count %q", meta["count"])
	}
	if ts, ok := meta["built_at"]; ok {
		a.BuiltAt, _ = time.Parse(time.RFC3339, ts)
	}

	if a.Documents, err = readDocuments(ctx, db, count); err != nil {
		return nil, err
	}
	if a.Vectors, err = readVectors(ctx, db, count); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func readDocuments(ctx context.Context, db *sql.DB, count int) ([]kb.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT ordinal, text, metadata FROM documents ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]kb.Record, 0, count)
	for rows.Next() {
		var ordinal int
		var text, metadata string
		if err := rows.Scan(&ordinal, &text, &metadata); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if ordinal != len(docs) {
			return nil, fmt.Errorf("document ordinal %d out of sequence, want %d", ordinal, len(docs))
		}

		doc := kb.Record{Text: text}
		dec := json.NewDecoder(bytes.NewReader([]byte(metadata)))
		dec.UseNumber()
		if err := dec.Decode(&doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata %d: %w", ordinal, err)
		}
		if len(doc.Metadata) == 0 {
			doc.Metadata = nil
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(docs) != count {
		return nil, fmt.Errorf("artifact lists %d documents, found %d", count, len(docs))
	}
	return docs, nil
}

func readVectors(ctx context.Context, db *sql.DB, count int) ([][]float32, error) {
	rows, err := db.QueryContext(ctx, `SELECT ordinal, embedding FROM vectors ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	vecs := make([][]float32, 0, count)
	for rows.Next() {
		var ordinal int
		var blob []byte
		if err := rows.Scan(&ordinal, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		if ordinal != len(vecs) {
			return nil, fmt.Errorf("vector ordinal %d out of sequence, want %d", ordinal, len(vecs))
		}
		v, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", ordinal, err)
		}
		vecs = append(vecs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(vecs) != count {
		return nil, fmt.Errorf("artifact lists %d vectors, found %d", count, len(vecs))
	}
	return vecs, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
