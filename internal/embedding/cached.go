package embedding

import (
	"context"
	"sync/atomic"

	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Entries    int   `json:"entries"`
	Persistent bool  `json:"persistent"`
}

// CachedEmbedder serves embeddings from an in-process LRU cache and, when configured,
// a persistent store, and only sends misses to the wrapped embedder.
type CachedEmbedder struct {
	inner  Embedder
	cache  *EmbeddingCache
	store  storage.EmbeddingStore
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner. store may be nil.
func NewCachedEmbedder(inner Embedder, cache *EmbeddingCache, store storage.EmbeddingStore, logger *zap.Logger) *CachedEmbedder {
	if cache == nil {
		cache = NewEmbeddingCache(0)
	}
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		store:  store,
		logger: utils.LoggerOrNop(logger),
	}
}

// Embed returns the passage embedding for text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns passage embeddings, embedding only the texts not found in a cache.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, InputTypePassage, c.inner.EmbedBatch)
}

// EmbedQuery returns the query embedding for text.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, InputTypeQuery, func(ctx context.Context, texts []string) ([][]float32, error) {
		v, err := c.inner.EmbedQuery(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (c *CachedEmbedder) embed(ctx context.Context, texts []string, inputType InputType, fn embedFunc) ([][]float32, error) {
	model := c.inner.Model()
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		keys[i] = CacheKey(model, inputType, text)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 && c.store != nil {
		missing = c.fillFromStore(ctx, keys, missing, out)
	}
	c.hits.Add(int64(len(texts) - len(missing)))
	c.misses.Add(int64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	// Identical texts in one call are embedded once.
	positions := make(map[string][]int, len(missing))
	var uniqueKeys []string
	var uniqueTexts []string
	for _, i := range missing {
		if _, seen := positions[keys[i]]; !seen {
			uniqueKeys = append(uniqueKeys, keys[i])
			uniqueTexts = append(uniqueTexts, texts[i])
		}
		positions[keys[i]] = append(positions[keys[i]], i)
	}

	vecs, err := fn(ctx, uniqueTexts)
	if err != nil {
		return nil, err
	}
	entries := make([]storage.EmbeddingEntry, 0, len(vecs))
	for j, vec := range vecs {
		key := uniqueKeys[j]
		c.cache.Set(key, vec)
		for _, i := range positions[key] {
			out[i] = vec
		}
		entries = append(entries, storage.EmbeddingEntry{Key: key, Model: model, Vector: vec})
	}
	if c.store != nil {
		if err := c.store.PutEmbeddings(ctx, entries); err != nil {
			c.logger.Warn("failed to persist embeddings", zap.Int("count", len(entries)), zap.Error(err))
		}
	}
	return out, nil
}

// fillFromStore copies persisted vectors into out and returns the positions still missing.
// Store errors are logged and treated as misses.
func (c *CachedEmbedder) fillFromStore(ctx context.Context, keys []string, missing []int, out [][]float32) []int {
	lookup := make([]string, len(missing))
	for j, i := range missing {
		lookup[j] = keys[i]
	}
	found, err := c.store.GetEmbeddings(ctx, lookup)
	if err != nil {
		c.logger.Warn("embedding store lookup failed", zap.Error(err))
		return missing
	}
	still := missing[:0]
	for _, i := range missing {
		if v, ok := found[keys[i]]; ok {
			out[i] = v
			c.cache.Set(keys[i], v)
			continue
		}
		still = append(still, i)
	}
	return still
}

// Stats returns cache hit and miss counts.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Entries:    c.cache.Len(),
		Persistent: c.store != nil,
	}
}

// Dimensions returns the wrapped embedder's dimensions.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Model returns the wrapped embedder's model.
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Close closes the wrapped embedder. The store is owned by the caller.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
