package kb

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/hubenschmidt/legalqa/core"
)

const maxLineBytes = 16 << 20

// LineError locates a malformed record in the source.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Load reads every record from the JSONL file at path, in file order.
// The whole load fails on the first malformed line.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.WithPath(core.NewOpError("load knowledge base", core.ErrSourceNotFound, nil), path)
	}
	if err != nil {
		return nil, core.WithPath(core.NewOpError("load knowledge base", core.ErrSourceNotFound, err), path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, core.WithPath(core.NewOpError("load knowledge base", core.ErrSourceNotFound, err), path)
	}
	if !info.Mode().IsRegular() {
		return nil, core.WithPath(core.NewOpError("load knowledge base", core.ErrSourceNotFound,
			fmt.Errorf("not a regular file")), path)
	}

	records, err := Read(f)
	if err != nil {
		var opErr *core.OpError
		if errors.As(err, &opErr) {
			opErr.Path = path
		}
		return nil, err
	}
	return records, nil
}

// Read parses JSONL records from r. Whitespace-only lines are skipped;
// anything else must be valid UTF-8 holding a JSON object with a string
// "text" field.
func Read(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []Record
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !utf8.Valid(raw) {
			return nil, core.NewOpError("read knowledge base", core.ErrMalformedRecord,
				&LineError{Line: line, Err: fmt.Errorf("invalid UTF-8")})
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, core.NewOpError("read knowledge base", core.ErrMalformedRecord, &LineError{Line: line, Err: err})
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, core.NewOpError("read knowledge base", core.ErrMalformedRecord, &LineError{Line: line + 1, Err: err})
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Texts returns the passage text of every record, order preserved.
func Texts(records []Record) []string {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	return texts
}
