// Package embedding maps text to fixed-length vectors. Every implementation
// preserves input order: the i-th text maps to the i-th vector.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hubenschmidt/legalqa/core"
	"go.uber.org/zap"
)

// DefaultModel is the sentence-transformers all-MiniLM-L6-v2 model as served
// by Ollama.
const DefaultModel = "ollama/all-minilm"

// Embedder converts texts to vectors. Implementations are safe for
// concurrent use.
type Embedder interface {
	// Embed returns one vector per text. Zero texts yield an empty result.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// ModelID is the "provider/name" identifier recorded in artifacts.
	ModelID() string
	// Dimension is the vector length, or 0 while still unknown.
	Dimension() int
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// Options configures the remote providers.
type Options struct {
	OpenAIKey     string
	OpenAIBaseURL string
	OllamaURL     string
	BatchSize     int
	Concurrency   int
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.OllamaURL == "" {
		o.OllamaURL = "http://localhost:11434"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Resolve builds the embedder named by modelID. Remote models are checked
// lazily: an unknown model surfaces as core.ErrModelLoad on first use.
func Resolve(modelID string, opts Options) (Embedder, error) {
	id, err := core.ParseModelID(modelID)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	switch id.Provider {
	case "ollama":
		return NewOllama(id.Name, opts), nil
	case "openai":
		if opts.OpenAIKey == "" && opts.OpenAIBaseURL == "" {
			return nil, core.NewOpError("resolve embedder", core.ErrModelLoad, fmt.Errorf("%s requires OPENAI_API_KEY", id))
		}
		return NewOpenAI(id.Name, opts), nil
	case "hash":
		h, err := NewHashFromName(id.Name)
		if err != nil {
			return nil, core.NewOpError("resolve embedder", core.ErrModelLoad, err)
		}
		return h, nil
	default:
		return nil, core.NewOpError("resolve embedder", core.ErrModelLoad, fmt.Errorf("unknown provider %q", id.Provider))
	}
}

// ResolveFunc matches Resolve with its options bound.
type ResolveFunc func(modelID string) (Embedder, error)

func Resolver(opts Options) ResolveFunc {
	return func(modelID string) (Embedder, error) {
		return Resolve(modelID, opts)
	}
}

// dimension records the vector length a remote model reports, once known.
type dimension struct {
	mu  sync.RWMutex
	dim int
}

func (d *dimension) get() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dim
}

func (d *dimension) check(vecs [][]float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("empty embedding at position %d", i)
		}
		if d.dim == 0 {
			d.dim = len(v)
		}
		if len(v) != d.dim {
			return fmt.Errorf("embedding at position %d has dimension %d, want %d", i, len(v), d.dim)
		}
	}
	return nil
}
