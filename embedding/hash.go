package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Hash is a deterministic feature-hashing embedder. Each lower-cased word
// token adds a signed unit to one of dim buckets; the result is L2
// normalised. It needs no network and is used for offline builds and tests.
type Hash struct {
	dim int
}

func NewHash(dim int) (*Hash, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hash embedder dimension must be positive, got %d", dim)
	}
	return &Hash{dim: dim}, nil
}

// NewHashFromName parses the model name part of "hash/<dim>".
func NewHashFromName(name string) (*Hash, error) {
	dim, err := strconv.Atoi(name)
	if err != nil {
		return nil, fmt.Errorf("hash embedder: invalid dimension %q: %w", name, err)
	}
	return NewHash(dim)
}

func (h *Hash) ModelID() string { return "hash/" + strconv.Itoa(h.dim) }

func (h *Hash) Dimension() int { return h.dim }

func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dim)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}
	l2normalize(v)
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
