// Package vector provides the passage index used for similarity retrieval.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the
	// dimensionality established by the first vector added to the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidArgument is returned for empty vectors, non-positive top-k and
	// mismatched batch lengths.
	ErrInvalidArgument = errors.New("invalid argument")
)

// VectorIndex stores (text, vector) passages and answers top-k cosine similarity queries.
// Passages are append-only; there is no removal or update.
type VectorIndex interface {
	Add(ctx context.Context, text string, vector []float32) error
	AddBatch(ctx context.Context, texts []string, vectors [][]float32) error
	// Search returns at most topK passages ordered by descending score. Ties keep insertion order.
	Search(ctx context.Context, query []float32, topK int) ([]*VectorResult, error)
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single search hit.
type VectorResult struct {
	Text     string
	Score    float64 // cosine similarity in [-1, 1]
	Position int     // insertion index of the passage
}
