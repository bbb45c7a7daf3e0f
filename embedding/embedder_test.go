package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hubenschmidt/legalqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		modelID string
		opts    Options
		wantID  string
		wantErr error
	}{
		{name: "ollama", modelID: "ollama/all-minilm", wantID: "ollama/all-minilm"},
		{name: "openai", modelID: "openai/text-embedding-3-small", opts: Options{OpenAIKey: "sk-test"}, wantID: "openai/text-embedding-3-small"},
		{name: "hash", modelID: "hash/64", wantID: "hash/64"},
		{name: "openai without key", modelID: "openai/text-embedding-3-small", wantErr: core.ErrModelLoad},
		{name: "unknown provider", modelID: "faiss/l2", wantErr: core.ErrModelLoad},
		{name: "bad hash dim", modelID: "hash/abc", wantErr: core.ErrModelLoad},
		{name: "no provider", modelID: "all-minilm", wantErr: core.ErrModelLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Resolve(tt.modelID, tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, e.ModelID())
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	h, err := NewHash(64)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := EmbedOne(ctx, h, "Section 420 IPC covers cheating.")
	require.NoError(t, err)
	b, err := EmbedOne(ctx, h, "section 420 ipc COVERS cheating")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)

	var sum float64
	for _, x := range a {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestHash_EmptyInputs(t *testing.T) {
	h, _ := NewHash(8)

	vecs, err := h.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)

	v, err := EmbedOne(context.Background(), h, "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestNewHash_RejectsNonPositive(t *testing.T) {
	_, err := NewHash(0)
	assert.Error(t, err)
}

func TestOllama_BatchesPreserveOrder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		calls.Add(1)

		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)

		resp := ollamaEmbedResponse{}
		for _, in := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(len(in)), 1})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllama("all-minilm", Options{OllamaURL: srv.URL + "/v1", BatchSize: 2})
	assert.Equal(t, 0, e.Dimension())

	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", ""})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}, {3, 1}, {0, 1}}, vecs)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, e.Dimension())
	assert.Equal(t, "ollama/all-minilm", e.ModelID())
}

func TestOllama_Errors(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantModel   bool
		errContains string
	}{
		{
			name: "model not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"model \"nope\" not found, try pulling it first"}`, http.StatusNotFound)
			},
			wantModel: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			errContains: "status 500",
		},
		{
			name: "count mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"embeddings":[[1,2]]}`))
			},
			errContains: "1 embeddings for 2 inputs",
		},
		{
			name: "inconsistent dimension",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"embeddings":[[1,2],[1,2,3]]}`))
			},
			errContains: "dimension 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			e := NewOllama("nope", Options{OllamaURL: srv.URL})
			_, err := e.Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			if tt.wantModel {
				assert.ErrorIs(t, err, core.ErrModelLoad)
				return
			}
			assert.NotErrorIs(t, err, core.ErrModelLoad)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func openAIServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"The model does not exist","type":"invalid_request_error","code":"model_not_found"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// reversed to check results are placed by index, not position
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(req.Input[j])), 0, 1}, Index: j}
		}
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
	}))
}

func TestOpenAI_ConcurrentBatchesPreserveOrder(t *testing.T) {
	srv := openAIServer(t, http.StatusOK)
	defer srv.Close()

	e := NewOpenAI("text-embedding-3-small", Options{OpenAIKey: "sk-test", OpenAIBaseURL: srv.URL + "/v1", BatchSize: 2, Concurrency: 3})
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, 3, e.Dimension())
}

func TestOpenAI_EmptyInputSkipsRequest(t *testing.T) {
	e := NewOpenAI("m", Options{OpenAIKey: "k", OpenAIBaseURL: "http://127.0.0.1:1"})
	vecs, err := e.Embed(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOpenAI_ModelNotFound(t *testing.T) {
	srv := openAIServer(t, http.StatusNotFound)
	defer srv.Close()

	e := NewOpenAI("missing", Options{OpenAIKey: "sk-test", OpenAIBaseURL: srv.URL + "/v1"})
	_, err := EmbedOne(context.Background(), e, "q")
	assert.ErrorIs(t, err, core.ErrModelLoad)
}
