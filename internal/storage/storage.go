// Package storage persists computed embeddings so repeated passages are not re-embedded.
package storage

import (
	"context"
	"time"
)

// EmbeddingEntry is one cached embedding.
type EmbeddingEntry struct {
	Key    string
	Model  string
	Vector []float32
}

// EmbeddingStore is a persistent key/value store for embeddings.
type EmbeddingStore interface {
	// GetEmbeddings returns the stored vectors for the keys that exist.
	GetEmbeddings(ctx context.Context, keys []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, entries []EmbeddingEntry) error
	CountEmbeddings(ctx context.Context) (int64, error)
	// Prune deletes entries created before cutoff and returns how many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Path() string
	Close() error
}
