// Package builder turns a knowledge base into a persisted index artifact.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hubenschmidt/legalqa/artifact"
	"github.com/hubenschmidt/legalqa/core"
	"github.com/hubenschmidt/legalqa/embedding"
	"github.com/hubenschmidt/legalqa/kb"
	"go.uber.org/zap"
)

// Builder embeds documents and writes the artifact.
type Builder struct {
	embedder embedding.Embedder
	logger   *zap.Logger
}

func New(e embedding.Embedder, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{embedder: e, logger: logger}
}

// Build embeds docs in order and bundles them with their vectors. An empty
// corpus yields a valid artifact with no vectors.
func (b *Builder) Build(ctx context.Context, docs []kb.Record) (*artifact.Artifact, error) {
	start := time.Now()

	vecs, err := b.embedder.Embed(ctx, kb.Texts(docs))
	if err != nil {
		return nil, core.NewOpError("embed corpus", core.ErrEmbedding, err)
	}
	if len(vecs) != len(docs) {
		return nil, core.NewOpError("embed corpus", core.ErrEmbedding,
			fmt.Errorf("got %d vectors for %d documents", len(vecs), len(docs)))
	}

	dim := b.embedder.Dimension()
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	for i, v := range vecs {
		if len(v) == 0 || len(v) != dim {
			return nil, core.NewOpError("embed corpus", core.ErrEmbedding,
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim))
		}
	}

	a := &artifact.Artifact{
		SchemaVersion: artifact.SchemaVersion,
		ModelID:       b.embedder.ModelID(),
		Dim:           dim,
		BuiltAt:       time.Now().UTC(),
		Documents:     docs,
		Vectors:       vecs,
	}
	if _, err := a.Index(); err != nil {
		return nil, core.NewOpError("build index", core.ErrEmbedding, err)
	}

	b.logger.Info("built index",
		zap.Int("documents", len(docs)),
		zap.Int("dim", dim),
		zap.String("model", a.ModelID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return a, nil
}

// BuildFile loads source, builds, and saves the artifact to dest. The source
// is checked before any embedding work starts.
func (b *Builder) BuildFile(ctx context.Context, source, dest string) (*artifact.Artifact, error) {
	if _, err := os.Stat(source); errors.Is(err, fs.ErrNotExist) {
		return nil, core.WithPath(core.NewOpError("build index", core.ErrSourceNotFound, nil), source)
	}

	docs, err := kb.Load(source)
	if err != nil {
		return nil, err
	}
	b.logger.Info("loaded knowledge base", zap.String("path", source), zap.Int("records", len(docs)))

	a, err := b.Build(ctx, docs)
	if err != nil {
		return nil, err
	}

	if err := artifact.Save(ctx, a, dest); err != nil {
		return nil, err
	}
	b.logger.Info("saved index artifact", zap.String("path", dest))
	return a, nil
}
