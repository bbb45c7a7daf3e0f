// Package artifact persists a built index as a single SQLite file holding
// the ordered documents, their vectors and the embedding model id.
package artifact

import (
	"fmt"
	"time"

	"github.com/hubenschmidt/legalqa/index"
	"github.com/hubenschmidt/legalqa/kb"
)

// SchemaVersion is the only on-disk layout Load accepts.
const SchemaVersion = 1

// Artifact is the output of an offline build. Documents[i] is the record
// whose vector is Vectors[i].
type Artifact struct {
	SchemaVersion int
	ModelID       string
	Dim           int
	BuiltAt       time.Time
	Documents     []kb.Record
	Vectors       [][]float32
}

// Validate checks the ordinal and dimension invariants.
func (a *Artifact) Validate() error {
	if a.ModelID == "" {
		return fmt.Errorf("artifact has no model id")
	}
	if len(a.Documents) != len(a.Vectors) {
		return fmt.Errorf("artifact has %d documents but %d vectors", len(a.Documents), len(a.Vectors))
	}
	for i, v := range a.Vectors {
		if len(v) != a.Dim {
			return fmt.Errorf("vector %d has dimension %d, artifact dim is %d", i, len(v), a.Dim)
		}
	}
	return nil
}

// Index builds the exact L2 index over the artifact's vectors.
func (a *Artifact) Index() (*index.Flat, error) {
	return index.NewFlat(a.Vectors)
}
