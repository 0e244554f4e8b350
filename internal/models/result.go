package models

// Source is a retrieved passage that was given to the answer generator.
type Source struct {
	Rank          int     `json:"rank"`
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score,omitempty"`
	DocumentID    string  `json:"document_id"`
	Title         string  `json:"title,omitempty"`
}

// RetrieveResponse is the result of retrieval without answer generation.
type RetrieveResponse struct {
	RequestID string    `json:"request_id"`
	Question  string    `json:"question"`
	Context   string    `json:"context"`
	Sources   []*Source `json:"sources"`
	Chunks    int       `json:"chunks"`
	QueryTime int64     `json:"query_time_ms"`
}

// AskResponse is the answer to an AskRequest.
type AskResponse struct {
	RequestID string    `json:"request_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []*Source `json:"sources"`
	QueryTime int64     `json:"query_time_ms"`
}

// ChunkResponse lists the passages of a document.
type ChunkResponse struct {
	Chunks []string `json:"chunks"`
	Count  int      `json:"count"`
}
