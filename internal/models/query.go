package models

import (
	"fmt"
	"strings"
)

const (
	// MaxTopK caps how many passages a single request may retrieve.
	MaxTopK = 50
	// MaxQuestionChars caps the question length.
	MaxQuestionChars = 4000
)

// AskRequest is a question to be answered from the supplied context.
// Zero TopK and MaxChars, and nil MinScore and Hybrid, mean "use the configured default".
type AskRequest struct {
	Question   string   `json:"question"`
	Context    string   `json:"context"`
	TopK       int      `json:"top_k,omitempty"`
	MaxChars   int      `json:"max_chars,omitempty"`
	MinScore   *float64 `json:"min_score,omitempty"`
	UseLibrary bool     `json:"use_library,omitempty"`
	Hybrid     *bool    `json:"hybrid,omitempty"`
}

// Validate checks the request and trims the question.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if len([]rune(r.Question)) > MaxQuestionChars {
		return fmt.Errorf("question exceeds %d characters", MaxQuestionChars)
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k must be positive, got %d", r.TopK)
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
	if r.MaxChars < 0 {
		return fmt.Errorf("max_chars must be positive, got %d", r.MaxChars)
	}
	if r.MinScore != nil && (*r.MinScore < -1 || *r.MinScore > 1) {
		return fmt.Errorf("min_score must be within [-1, 1], got %v", *r.MinScore)
	}
	return nil
}

// ChunkRequest asks for a document to be split into passages.
type ChunkRequest struct {
	Text     string `json:"text"`
	MaxChars int    `json:"max_chars,omitempty"`
}
