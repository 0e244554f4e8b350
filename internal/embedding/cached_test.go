package embedding

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_LRUHits(t *testing.T) {
	inner := NewMockEmbedder(8)
	c := NewCachedEmbedder(inner, NewEmbeddingCache(100), nil, nil)
	ctx := context.Background()

	first, err := c.EmbedBatch(ctx, []string{"alpha", "beta", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.Calls(), "duplicate text should be embedded once")
	assert.Equal(t, first[0], first[2])

	second, err := c.EmbedBatch(ctx, []string{"beta", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.Calls(), "second call should be served from cache")
	assert.Equal(t, first[1], second[0])

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, 2, stats.Entries)
	assert.False(t, stats.Persistent)
}

func TestCachedEmbedder_QueryAndPassageCachedSeparately(t *testing.T) {
	inner := NewMockEmbedder(8)
	c := NewCachedEmbedder(inner, NewEmbeddingCache(100), nil, nil)
	ctx := context.Background()

	_, err := c.Embed(ctx, "same text")
	require.NoError(t, err)
	_, err = c.EmbedQuery(ctx, "same text")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.Calls())
	_, err = c.EmbedQuery(ctx, "same text")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.Calls())
}

func TestCachedEmbedder_PersistentStore(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first := NewMockEmbedder(8)
	c1 := NewCachedEmbedder(first, NewEmbeddingCache(10), store, nil)
	want, err := c1.EmbedBatch(ctx, []string{"persist me", "and me"})
	require.NoError(t, err)

	// A fresh process: empty LRU, same store.
	second := NewMockEmbedder(8)
	c2 := NewCachedEmbedder(second, NewEmbeddingCache(10), store, nil)
	got, err := c2.EmbedBatch(ctx, []string{"and me", "persist me"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Calls())
	assert.Equal(t, want[1], got[0])
	assert.Equal(t, want[0], got[1])
	assert.True(t, c2.Stats().Persistent)
}

type failingEmbedder struct{ MockEmbedder }

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func TestCachedEmbedder_PropagatesErrors(t *testing.T) {
	c := NewCachedEmbedder(&failingEmbedder{}, NewEmbeddingCache(10), nil, nil)
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	assert.EqualError(t, err, "provider down")
	assert.Equal(t, 0, c.Stats().Entries)
}
