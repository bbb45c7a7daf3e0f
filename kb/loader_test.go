package kb

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hubenschmidt/legalqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKB(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legal_kb.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_PreservesOrderAndMetadata(t *testing.T) {
	path := writeKB(t, `{"text":"Section 420 IPC covers cheating.","section":"420","act":"IPC"}
{"text":"Section 302 IPC covers murder.","section":"302","year":1860}
`)

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Section 420 IPC covers cheating.", records[0].Text)
	assert.Equal(t, map[string]any{"section": "420", "act": "IPC"}, records[0].Metadata)
	assert.Equal(t, "Section 302 IPC covers murder.", records[1].Text)
	assert.Equal(t, json.Number("1860"), records[1].Metadata["year"])
}

func TestLoad_SourceNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
}

func TestLoad_DirectoryIsNotASource(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
	assert.NotErrorIs(t, err, core.ErrMalformedRecord)
}

func TestRead_InvalidUTF8(t *testing.T) {
	input := "{\"text\":\"Section 420\"}\n{\"text\":\"a\xffb\"}\n"

	records, err := Read(strings.NewReader(input))
	assert.Nil(t, records)
	require.ErrorIs(t, err, core.ErrMalformedRecord)

	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
	assert.Contains(t, err.Error(), "invalid UTF-8")
}

func TestLoad_MalformedSecondLine(t *testing.T) {
	path := writeKB(t, `{"text":"ok"}
{"text": not json}
{"text":"never read"}
`)

	records, err := Load(path)
	require.Error(t, err)
	assert.Nil(t, records)
	assert.ErrorIs(t, err, core.ErrMalformedRecord)

	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 2, lineErr.Line)
	assert.Contains(t, err.Error(), path)
}

func TestRead_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing text", `{"title":"no text"}`},
		{"text not string", `{"text":42}`},
		{"array", `["text"]`},
		{"null", `null`},
		{"trailing data", `{"text":"a"} {"text":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, core.ErrMalformedRecord)
		})
	}
}

func TestRead_EmptyTextAndBlankLines(t *testing.T) {
	records, err := Read(strings.NewReader("{\"text\":\"\"}\n\n   \n{\"text\":\"b\"}\n"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "", records[0].Text)
	assert.Nil(t, records[0].Metadata)
	assert.Equal(t, []string{"", "b"}, Texts(records))
}

func TestRead_EmptySource(t *testing.T) {
	records, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecord_JSONIsFlat(t *testing.T) {
	rec := Record{Text: "Section 420", Metadata: map[string]any{"act": "IPC"}}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"Section 420","act":"IPC"}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestRecord_CloneIsIndependent(t *testing.T) {
	rec := Record{Text: "a", Metadata: map[string]any{"k": "v"}}
	c := rec.Clone()
	c.Metadata["k"] = "changed"
	assert.Equal(t, "v", rec.Metadata["k"])
}
