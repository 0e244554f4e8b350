// Package search retrieves the passages most relevant to a question, by cosine similarity
// alone or fused with keyword (BM25) scores.
package search

import (
	"sort"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/vector"
)

// FusedResult holds a chunk position and its fused keyword/semantic scores.
type FusedResult struct {
	Position      int
	Score         float64
	KeywordScore  float64
	SemanticScore float64
	// Cosine is the raw cosine similarity, before normalization.
	Cosine float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max, keyed by chunk position.
// Results whose ID is not in positions are ignored.
func NormalizeKeywordScores(results []*keyword.KeywordResult, positions map[string]int) map[int]float64 {
	normalized := make(map[int]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		pos, ok := positions[r.ID]
		if !ok {
			continue
		}
		if maxScore > 0 {
			normalized[pos] = r.Score / maxScore
		} else {
			normalized[pos] = 0
		}
	}
	return normalized
}

// NormalizeSemanticScore maps a cosine similarity in [-1,1] to [0,1].
func NormalizeSemanticScore(cosine float64) float64 {
	return (cosine + 1) / 2
}

// Fuse combines every semantic result with its keyword score, if any, and returns the results
// sorted by fused score. Ties keep the order of semantic, which is the vector index ranking.
// Passages with an undefined similarity (vector.MinScore) fuse to 0 whatever their keyword
// score, so they never outrank a passage with a defined one.
func Fuse(semantic []*vector.VectorResult, keywordScores map[int]float64, keywordWeight, semanticWeight float64) []*FusedResult {
	results := make([]*FusedResult, 0, len(semantic))
	for _, r := range semantic {
		f := &FusedResult{
			Position:      r.Position,
			Cosine:        r.Score,
			SemanticScore: NormalizeSemanticScore(r.Score),
			KeywordScore:  keywordScores[r.Position],
		}
		if r.Score > vector.MinScore {
			f.Score = keywordWeight*f.KeywordScore + semanticWeight*f.SemanticScore
		}
		results = append(results, f)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
