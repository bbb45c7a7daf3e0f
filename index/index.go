// Package index provides exact nearest-neighbour search over embedding
// vectors addressed by ordinal position.
package index

import "context"

// Neighbor is one search hit. Distance is Euclidean (L2).
type Neighbor struct {
	Ordinal  int     `json:"ordinal"`
	Distance float64 `json:"distance"`
}

// Index answers k-nearest-neighbour queries. Ordinal i refers to the i-th
// vector the index was built from.
type Index interface {
	// Search returns up to k neighbours, nearest first, ties broken by
	// lower ordinal. k larger than Len is not an error.
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)

	// Len is the number of indexed vectors.
	Len() int

	// Dim is the vector dimension, or 0 for an empty index.
	Dim() int
}
