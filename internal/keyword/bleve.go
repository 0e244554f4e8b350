package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const contentField = "content"

// BleveIndex implements KeywordIndex using an in-memory Bleve index.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates an empty in-memory Bleve index. Nothing is written to disk.
func NewBleveIndex() (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" matches "Bayes"
	// but not "bay".
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(contentField, textFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes text under id.
func (b *BleveIndex) Index(ctx context.Context, id string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.index.Index(id, map[string]interface{}{contentField: text})
}

// IndexBatch indexes texts[i] under ids[i] in a single batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, ids []string, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("ids and texts length mismatch: %d vs %d", len(ids), len(texts))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for i, id := range ids {
		if err := batch.Index(id, map[string]interface{}{contentField: texts[i]}); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", id, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search runs a match query and returns up to limit results, best first.
// Multi-term queries are scaled by the squared fraction of query terms each chunk matches,
// and by opts.PhraseBoost when the terms appear as a phrase.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		return []*KeywordResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 1
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return []*KeywordResult{}, nil
	}

	// Request more than limit so coverage and phrase adjustments can reorder the tail.
	reqSize := max(limit*2, 50)
	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(terms, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(contentField)
		q = mq
	}
	req := bleve.NewSearchRequest(q)
	req.Size = reqSize
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	var coverage map[string]int
	if len(terms) > 1 {
		coverage = b.termCoverage(ctx, terms, reqSize, fuzzyEnabled, fuzziness)
	}
	var phrases map[string]bool
	if phraseBoost > 1.0 && len(terms) > 1 {
		phrases = b.phraseMatches(ctx, query, reqSize)
	}

	out := make([]*KeywordResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		score := hit.Score
		if len(terms) > 1 {
			matched := max(coverage[hit.ID], 1)
			c := float64(matched) / float64(len(terms))
			score *= c * c
		}
		if phrases[hit.ID] {
			score *= phraseBoost
		}
		out = append(out, &KeywordResult{ID: hit.ID, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return strings.ContainsRune(".,;:!?\"'()[]{}", r) })
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per term.
func buildFuzzyQuery(terms []string, fuzziness int) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(contentField)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many distinct query terms each chunk matches.
func (b *BleveIndex) termCoverage(ctx context.Context, terms []string, reqSize int, fuzzyEnabled bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		var q blevequery.Query
		if fuzzyEnabled {
			q = buildFuzzyQuery([]string{term}, fuzziness)
		} else {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(contentField)
			q = mq
		}
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// phraseMatches returns the chunks containing query as a phrase.
func (b *BleveIndex) phraseMatches(ctx context.Context, query string, reqSize int) map[string]bool {
	matches := make(map[string]bool)
	pq := bleve.NewMatchPhraseQuery(query)
	pq.SetField(contentField)
	req := bleve.NewSearchRequest(pq)
	req.Size = reqSize
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return matches
	}
	for _, hit := range results.Hits {
		matches[hit.ID] = true
	}
	return matches
}

// Size returns the number of indexed chunks.
func (b *BleveIndex) Size() int {
	n, err := b.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
