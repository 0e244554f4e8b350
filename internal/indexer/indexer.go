package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// BuildOptions control how a session is built.
type BuildOptions struct {
	MaxChars int
	// Hybrid also builds a keyword index over the chunks.
	Hybrid bool
}

// Indexer chunks documents, embeds the chunks and loads them into a fresh session.
type Indexer struct {
	embedder  embedding.Embedder
	indexType string
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithIndexType selects the vector index implementation (see vector.NewVectorIndex).
func WithIndexType(t string) IndexerOption {
	return func(idx *Indexer) { idx.indexType = t }
}

// NewIndexer creates an indexer that embeds passages with embedder.
func NewIndexer(embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:  embedder,
		indexType: string(vector.IndexTypeMemory),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.LoggerOrNop(idx.logger)
	return idx
}

// ChunkDocuments splits every document into chunks with IDs "<document id>_<n>".
// Documents without text contribute no chunks.
func ChunkDocuments(docs []*models.Document, maxChars int) ([]*models.DocumentChunk, error) {
	var chunks []*models.DocumentChunk
	for _, doc := range docs {
		texts, err := ChunkText(doc.Content, maxChars)
		if err != nil {
			return nil, err
		}
		for i, text := range texts {
			chunks = append(chunks, &models.DocumentChunk{
				ID:         fmt.Sprintf("%s_%d", doc.ID, i),
				DocumentID: doc.ID,
				Content:    text,
				ChunkIndex: i,
			})
		}
	}
	return chunks, nil
}

// Build chunks docs, embeds every chunk as a passage and returns a session holding the
// vector index and, when opts.Hybrid is set, a keyword index. The caller closes the session.
func (idx *Indexer) Build(ctx context.Context, docs []*models.Document, opts BuildOptions) (*search.Session, error) {
	start := time.Now()
	chunks, err := ChunkDocuments(docs, opts.MaxChars)
	if err != nil {
		return nil, err
	}

	vi, err := vector.NewVectorIndex(idx.indexType, idx.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	session := &search.Session{
		Chunks:    chunks,
		Documents: make(map[string]*models.Document, len(docs)),
		Vectors:   vi,
	}
	for _, doc := range docs {
		session.Documents[doc.ID] = doc
	}
	if len(chunks) == 0 {
		return session, nil
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		ids[i] = c.ID
	}
	vecs, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	for i, c := range chunks {
		c.Embedding = vecs[i]
	}
	if err := vi.AddBatch(ctx, texts, vecs); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to add chunks to vector index: %w", err)
	}

	if opts.Hybrid {
		kw, err := keyword.NewBleveIndex()
		if err != nil {
			_ = session.Close()
			return nil, err
		}
		session.Keywords = kw
		if err := kw.IndexBatch(ctx, ids, texts); err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("failed to build keyword index: %w", err)
		}
	}

	idx.logger.Debug("session built",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", vi.Dimensions()),
		zap.Bool("hybrid", opts.Hybrid),
		zap.Duration("took", time.Since(start)),
	)
	return session, nil
}
