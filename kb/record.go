// Package kb loads the legal knowledge base: newline-delimited JSON where
// every line is one passage carrying at least a "text" field.
package kb

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TextField is the only field a knowledge base record must carry.
const TextField = "text"

// Record is one passage of the knowledge base. Metadata holds every field of
// the source object other than "text", decoded with json.Number so values
// round-trip unchanged.
type Record struct {
	Text     string
	Metadata map[string]any
}

// Fields returns the record as a flat map with "text" alongside its metadata.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		out[k] = v
	}
	out[TextField] = r.Text
	return out
}

// Clone returns a copy whose metadata map can be modified independently.
func (r Record) Clone() Record {
	c := Record{Text: r.Text}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := decodeRecord(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func decodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return Record{}, fmt.Errorf("decode json: %w", err)
	}
	if obj == nil {
		return Record{}, fmt.Errorf("expected a JSON object")
	}
	if dec.More() {
		return Record{}, fmt.Errorf("unexpected data after JSON object")
	}

	raw, ok := obj[TextField]
	if !ok {
		return Record{}, fmt.Errorf("missing %q field", TextField)
	}
	text, ok := raw.(string)
	if !ok {
		return Record{}, fmt.Errorf("%q field must be a string, got %T", TextField, raw)
	}
	delete(obj, TextField)

	rec := Record{Text: text}
	if len(obj) > 0 {
		rec.Metadata = obj
	}
	return rec, nil
}
