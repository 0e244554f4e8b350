// Package embedding turns text into vectors through an OpenAI-compatible API, a local
// ONNX model or a deterministic mock, with an optional cache in front.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// InputType tells asymmetric retrieval models whether a text is a stored passage or a query.
type InputType string

const (
	InputTypePassage InputType = "passage"
	InputTypeQuery   InputType = "query"
)

// Embedder produces vector embeddings for text. Embed and EmbedBatch embed passages;
// EmbedQuery embeds a question.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the vector length, or 0 while it is not yet known.
	Dimensions() int
	Model() string
	Close() error
}

// CacheKey identifies an embedding of text by model and input type.
func CacheKey(model string, inputType InputType, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(inputType))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
