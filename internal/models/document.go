// Package models defines core data structures for documents, ask requests, and retrieval results.
package models

import "time"

// Document is a body of text passages are cut from: the context sent with a request
// or a file from the reference library.
type Document struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// DocumentChunk is one passage of a document, used for semantic and keyword retrieval.
type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	Embedding  []float32 `json:"-"`
}

// RequestContextID is the document ID given to the context text sent with a request.
const RequestContextID = "request"
