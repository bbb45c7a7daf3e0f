// Package retriever answers "which passages are closest to this question"
// against a loaded index artifact.
package retriever

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hubenschmidt/legalqa/artifact"
	"github.com/hubenschmidt/legalqa/core"
	"github.com/hubenschmidt/legalqa/embedding"
	"github.com/hubenschmidt/legalqa/index"
	"github.com/hubenschmidt/legalqa/kb"
	"go.uber.org/zap"
)

// DefaultK is the number of passages returned when the caller does not ask
// for a specific count.
const DefaultK = 4

// ScoredResult is a copy of a knowledge base record plus its relevance
// score. It serialises flat: {"text": ..., <metadata>..., "score": ...}.
type ScoredResult struct {
	kb.Record
	Score float64
}

func (r ScoredResult) MarshalJSON() ([]byte, error) {
	fields := r.Fields()
	fields["score"] = r.Score
	return json.Marshal(fields)
}

// UnmarshalJSON reads the flat form written by MarshalJSON, moving "score"
// out of the metadata.
func (r *ScoredResult) UnmarshalJSON(data []byte) error {
	var rec kb.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	var score float64
	if raw, ok := rec.Metadata["score"]; ok {
		n, ok := raw.(json.Number)
		if !ok {
			return fmt.Errorf("score must be a number, got %T", raw)
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("parse score: %w", err)
		}
		score = f
		delete(rec.Metadata, "score")
		if len(rec.Metadata) == 0 {
			rec.Metadata = nil
		}
	}

	r.Record = rec
	r.Score = score
	return nil
}

// Score maps an L2 distance to a relevance in (0, 1]; zero distance scores 1.
func Score(distance float64) float64 {
	return 1 / (1 + distance)
}

// Retriever is read-only after construction and safe for concurrent use.
type Retriever struct {
	docs     []kb.Record
	dim      int
	modelID  string
	embedder embedding.Embedder
	index    index.Index
	openIdx  IndexFunc
	logger   *zap.Logger
}

// IndexFunc opens a search backend for a loaded artifact.
type IndexFunc func(a *artifact.Artifact) (index.Index, error)

type Option func(*Retriever)

// WithIndex replaces the in-memory index built from the artifact, for
// example with a pgvector table published from the same build.
func WithIndex(idx index.Index) Option {
	return func(r *Retriever) { r.index = idx }
}

// WithIndexFunc defers choosing the index until the artifact is known, so
// a backend that needs the artifact's dimension can be opened by Load.
func WithIndexFunc(fn IndexFunc) Option {
	return func(r *Retriever) { r.openIdx = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// Load reads the artifact at path and resolves the embedder from the model
// id recorded in it.
func Load(ctx context.Context, path string, resolve embedding.ResolveFunc, opts ...Option) (*Retriever, error) {
	a, err := artifact.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	e, err := resolve(a.ModelID)
	if err != nil {
		return nil, core.NewOpError("load retriever", core.ErrModelLoad, err)
	}
	return New(a, e, opts...)
}

// New builds a retriever over an in-memory artifact. The embedder must be
// the model the artifact was built with.
func New(a *artifact.Artifact, e embedding.Embedder, opts ...Option) (*Retriever, error) {
	if e.ModelID() != a.ModelID {
		return nil, core.NewOpError("load retriever", core.ErrModelLoad,
			fmt.Errorf("artifact was built with %s, got embedder %s", a.ModelID, e.ModelID()))
	}

	r := &Retriever{
		docs:     a.Documents,
		dim:      a.Dim,
		modelID:  a.ModelID,
		embedder: e,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.index == nil && r.openIdx != nil {
		idx, err := r.openIdx(a)
		if err != nil {
			return nil, core.NewOpError("open index", core.ErrPersistence, err)
		}
		r.index = idx
	}
	if r.index == nil {
		flat, err := a.Index()
		if err != nil {
			return nil, core.NewOpError("load retriever", core.ErrPersistence, err)
		}
		r.index = flat
	}
	if r.index.Len() != len(r.docs) {
		return nil, core.NewOpError("load retriever", core.ErrPersistence,
			fmt.Errorf("index holds %d vectors for %d documents", r.index.Len(), len(r.docs)))
	}

	r.logger.Info("retriever ready",
		zap.String("model", r.modelID),
		zap.Int("documents", len(r.docs)),
		zap.Int("dim", r.dim),
	)
	return r, nil
}

// GetRelevantDocuments returns up to k passages nearest to query, most
// relevant first. k <= 0 means DefaultK.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string, k int) ([]ScoredResult, error) {
	if k <= 0 {
		k = DefaultK
	}
	if len(r.docs) == 0 {
		return []ScoredResult{}, nil
	}

	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, core.NewOpError("embed query", core.ErrQueryEmbedding, err)
	}
	if len(vec) != r.dim {
		return nil, core.NewOpError("embed query", core.ErrQueryEmbedding,
			fmt.Errorf("query vector has dimension %d, index has %d", len(vec), r.dim))
	}

	neighbors, err := r.index.Search(ctx, vec, min(k, len(r.docs)))
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]ScoredResult, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Ordinal < 0 || n.Ordinal >= len(r.docs) {
			r.logger.Warn("dropping out-of-range ordinal", zap.Int("ordinal", n.Ordinal), zap.Int("documents", len(r.docs)))
			continue
		}
		results = append(results, ScoredResult{
			Record: r.docs[n.Ordinal].Clone(),
			Score:  Score(n.Distance),
		})
	}
	return results, nil
}

func (r *Retriever) Len() int { return len(r.docs) }

func (r *Retriever) ModelID() string { return r.modelID }

func (r *Retriever) Dim() int { return r.dim }
