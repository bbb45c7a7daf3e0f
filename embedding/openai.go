package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hubenschmidt/legalqa/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OpenAI calls an OpenAI-compatible /embeddings endpoint. Batches are sent
// concurrently and reassembled in input order.
type OpenAI struct {
	client      *openai.Client
	model       string
	batchSize   int
	concurrency int
	logger      *zap.Logger
	dim         dimension
}

func NewOpenAI(model string, opts Options) *OpenAI {
	opts = opts.withDefaults()
	cfg := openai.DefaultConfig(opts.OpenAIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}
	cfg.HTTPClient = opts.HTTPClient
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
}

func (e *OpenAI) ModelID() string { return "openai/" + e.model }

func (e *OpenAI) Dimension() int { return e.dim.get() }

func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			return e.embedBatch(gctx, texts[start:end], out[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := e.dim.check(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAI) embedBatch(ctx context.Context, inputs []string, dst [][]float32) error {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: inputs,
	})
	if err != nil {
		if isModelMissing(err) {
			return core.NewOpError("load openai model "+e.model, core.ErrModelLoad, err)
		}
		return fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(inputs))
	}

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(dst) {
			return fmt.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		dst[d.Index] = v
	}
	e.logger.Debug("embedded batch", zap.String("model", e.model), zap.Int("size", len(inputs)))
	return nil
}

func isModelMissing(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusNotFound || apiErr.HTTPStatusCode == http.StatusUnauthorized
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound || reqErr.HTTPStatusCode == http.StatusUnauthorized
	}
	return false
}
