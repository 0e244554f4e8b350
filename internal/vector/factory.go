package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force cosine search. Query cost is linear
	// in the number of stored passages.
	IndexTypeMemory IndexType = "memory"
)

// NewVectorIndex creates a vector index of the specified type. A dimensions value of 0
// lets the first added vector establish the dimensionality.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		idx, err := NewMemoryIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory)", indexType)
	}
}
