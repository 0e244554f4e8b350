package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// It is safe for concurrent use: Add is serialized against Search.
type MemoryIndex struct {
	dimensions int
	texts      []string
	vectors    [][]float32
	norms      []float64
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index. With dimensions 0 the first
// added vector fixes the dimensionality.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("%w: dimensions must not be negative, got %d", ErrInvalidArgument, dimensions)
	}
	return &MemoryIndex{
		dimensions: dimensions,
		texts:      make([]string, 0),
		vectors:    make([][]float32, 0),
		norms:      make([]float64, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add appends one passage. The vector is copied.
func (m *MemoryIndex) Add(ctx context.Context, text string, vector []float32) error {
	return m.AddBatch(ctx, []string{text}, [][]float32{vector})
}

// AddBatch appends passages in order. Either every passage is added or none is.
func (m *MemoryIndex) AddBatch(ctx context.Context, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("%w: %d texts but %d vectors", ErrInvalidArgument, len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dims := m.dimensions
	for i, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("%w: empty vector at position %d", ErrInvalidArgument, i)
		}
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), dims)
		}
	}

	m.dimensions = dims
	for i, text := range texts {
		vec := make([]float32, dims)
		copy(vec, vectors[i])
		m.texts = append(m.texts, text)
		m.vectors = append(m.vectors, vec)
		m.norms = append(m.norms, L2Norm(vec))
	}
	return nil
}

type scored struct {
	pos     int
	score   float64
	defined bool
}

// Search returns the topK passages most similar to query. An empty index yields an
// empty result and no error.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]*VectorResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.texts) == 0 {
		return []*VectorResult{}, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), m.dimensions)
	}

	queryNorm := L2Norm(query)
	scores := make([]scored, len(m.vectors))
	for i, vec := range m.vectors {
		s := scored{pos: i}
		s.score, s.defined = cosine(vec, query, m.norms[i], queryNorm)
		scores[i] = s
	}
	// Undefined similarities sort after defined ones with the same score.
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].defined && !scores[j].defined
	})

	if topK > len(scores) {
		topK = len(scores)
	}
	result := make([]*VectorResult, topK)
	for i := 0; i < topK; i++ {
		s := scores[i]
		result[i] = &VectorResult{Text: m.texts[s.pos], Score: s.score, Position: s.pos}
	}
	return result, nil
}

// Size returns the number of stored passages.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.texts)
}

// Dimensions returns the established dimensionality, or 0 before the first add.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Close releases stored passages.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = nil
	m.vectors = nil
	m.norms = nil
	return nil
}
