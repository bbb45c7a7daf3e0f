// Package embeddingtest provides deterministic embedders for tests.
package embeddingtest

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode"
)

// Vocab embeds text as word counts over a fixed vocabulary. Words outside
// the vocabulary are ignored, so distances are easy to reason about.
type Vocab struct {
	ID    string
	Words []string
	// Err, when set, is returned by every Embed call.
	Err error

	calls atomic.Int32
}

func NewVocab(words ...string) *Vocab {
	return &Vocab{ID: "test/vocab", Words: words}
}

func (v *Vocab) ModelID() string { return v.ID }

func (v *Vocab) Dimension() int { return len(v.Words) }

// Calls reports how many times Embed was invoked.
func (v *Vocab) Calls() int { return int(v.calls.Load()) }

func (v *Vocab) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	v.calls.Add(1)
	if v.Err != nil {
		return nil, v.Err
	}

	pos := make(map[string]int, len(v.Words))
	for i, w := range v.Words {
		pos[w] = i
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(v.Words))
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if p, ok := pos[w]; ok {
				vec[p]++
			}
		}
		out[i] = vec
	}
	return out, nil
}
