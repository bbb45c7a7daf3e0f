package index

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Flat is an immutable brute-force L2 index. It holds no locks because
// nothing mutates it after construction.
type Flat struct {
	vectors [][]float32
	dim     int
}

// NewFlat indexes vectors in order. All vectors must share one dimension.
func NewFlat(vectors [][]float32) (*Flat, error) {
	f := &Flat{vectors: vectors}
	for i, v := range vectors {
		if i == 0 {
			f.dim = len(v)
		}
		if len(v) != f.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), f.dim)
		}
	}
	return f, nil
}

func (f *Flat) Len() int { return len(f.vectors) }

func (f *Flat) Dim() int { return f.dim }

// Vectors exposes the indexed vectors for persistence. Callers must not
// modify them.
func (f *Flat) Vectors() [][]float32 { return f.vectors }

func (f *Flat) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if k <= 0 || len(f.vectors) == 0 {
		return []Neighbor{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), f.dim)
	}

	results := f.computeDistances(query)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (f *Flat) computeDistances(query []float32) []Neighbor {
	results := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		results[i] = Neighbor{Ordinal: i, Distance: L2(query, v)}
	}
	return results
}

// L2 returns the Euclidean distance between a and b, which must have equal
// length.
func L2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
