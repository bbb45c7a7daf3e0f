package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hubenschmidt/legalqa/core"
	"go.uber.org/zap"
)

// Ollama uses Ollama's native /api/embed endpoint.
type Ollama struct {
	baseURL   string
	model     string
	batchSize int
	client    *http.Client
	logger    *zap.Logger
	dim       dimension
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllama creates an embedder for model on the Ollama host in opts.
func NewOllama(model string, opts Options) *Ollama {
	opts = opts.withDefaults()
	host := strings.TrimSuffix(opts.OllamaURL, "/")
	host = strings.TrimSuffix(host, "/v1")
	return &Ollama{
		baseURL:   host,
		model:     model,
		batchSize: opts.BatchSize,
		client:    opts.HTTPClient,
		logger:    opts.Logger,
	}
}

func (o *Ollama) ModelID() string { return "ollama/" + o.model }

func (o *Ollama) Dimension() int { return o.dim.get() }

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := min(start+o.batchSize, len(texts))
		vecs, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
		o.logger.Debug("embedded batch", zap.String("model", o.model), zap.Int("done", end), zap.Int("total", len(texts)))
	}
	if err := o.dim.check(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Ollama) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, core.NewOpError("load ollama model "+o.model, core.ErrModelLoad, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(inputs))
	}
	return parsed.Embeddings, nil
}
