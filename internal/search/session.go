package search

import (
	"errors"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Session holds the chunks of one request and the indexes built over them.
// Chunks[i] is the chunk stored at position i of Vectors.
type Session struct {
	Chunks    []*models.DocumentChunk
	Documents map[string]*models.Document
	Vectors   vector.VectorIndex
	// Keywords is nil when hybrid retrieval is disabled.
	Keywords keyword.KeywordIndex
}

// Size returns the number of chunks in the session.
func (s *Session) Size() int {
	return len(s.Chunks)
}

// Hybrid reports whether the session has a keyword index.
func (s *Session) Hybrid() bool {
	return s.Keywords != nil
}

// Close releases both indexes.
func (s *Session) Close() error {
	var errs []error
	if s.Vectors != nil {
		errs = append(errs, s.Vectors.Close())
	}
	if s.Keywords != nil {
		errs = append(errs, s.Keywords.Close())
	}
	return errors.Join(errs...)
}

func (s *Session) chunkByID() map[string]int {
	m := make(map[string]int, len(s.Chunks))
	for i, c := range s.Chunks {
		m[c.ID] = i
	}
	return m
}
