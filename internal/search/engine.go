package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// ContextSeparator joins retrieved passages into the generator's context.
const ContextSeparator = "\n\n"

// Options control a single retrieval.
type Options struct {
	// MinScore drops passages whose cosine similarity is below it. -1 keeps everything.
	MinScore float64
	// Hybrid fuses keyword scores in when the session has a keyword index.
	Hybrid         bool
	KeywordWeight  float64
	SemanticWeight float64
	FuzzyKeywords  bool
	// Fuzziness is the edit distance for fuzzy keyword terms; 0 means 1.
	Fuzziness int
	// PhraseBoost multiplies keyword scores of passages containing the question as a phrase.
	PhraseBoost float64
}

// DefaultOptions returns cosine-only retrieval that keeps every passage.
func DefaultOptions() Options {
	return Options{MinScore: vector.MinScore, KeywordWeight: 0.3, SemanticWeight: 0.7}
}

// Result is one retrieved passage.
type Result struct {
	Chunk         *models.DocumentChunk
	Score         float64
	SemanticScore float64
	KeywordScore  float64
}

// Engine ranks a session's passages against a question.
type Engine struct {
	embedder embedding.Embedder
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine that embeds questions with embedder.
func NewEngine(embedder embedding.Embedder, opts ...EngineOption) *Engine {
	e := &Engine{embedder: embedder}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.LoggerOrNop(e.logger)
	return e
}

// Retrieve returns up to topK passages of s, best first. An empty session yields no results.
// topK <= 0 is rejected by the vector index with vector.ErrInvalidArgument.
func (e *Engine) Retrieve(ctx context.Context, s *Session, question string, topK int, opts Options) ([]*Result, error) {
	start := time.Now()
	question = ProcessQuery(question)
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", vector.ErrInvalidArgument, topK)
	}
	if s == nil || s.Size() == 0 {
		return []*Result{}, nil
	}

	hybrid := opts.Hybrid && s.Hybrid() && opts.KeywordWeight > 0
	var (
		queryVec        []float32
		keywordHits     []*keyword.KeywordResult
		embedErr, kwErr error
		wg              sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		queryVec, embedErr = e.embedder.EmbedQuery(ctx, question)
	}()
	if hybrid {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keywordHits, kwErr = s.Keywords.Search(ctx, question, s.Size(), &keyword.SearchOptions{
				FuzzyEnabled: opts.FuzzyKeywords,
				Fuzziness:    opts.Fuzziness,
				PhraseBoost:  opts.PhraseBoost,
			})
		}()
	}
	wg.Wait()
	if embedErr != nil {
		return nil, fmt.Errorf("failed to embed question: %w", embedErr)
	}
	if kwErr != nil {
		// Keyword scores only refine the ranking.
		e.logger.Warn("keyword search failed, using cosine ranking", zap.Error(kwErr))
		hybrid = false
	}

	var results []*Result
	if hybrid {
		// Score every passage so keyword-only hits still get a cosine score.
		semantic, err := s.Vectors.Search(ctx, queryVec, s.Size())
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		fused := Fuse(semantic, NormalizeKeywordScores(keywordHits, s.chunkByID()), opts.KeywordWeight, opts.SemanticWeight)
		for _, f := range fused {
			if f.Cosine < opts.MinScore {
				continue
			}
			results = append(results, &Result{
				Chunk:         s.Chunks[f.Position],
				Score:         f.Score,
				SemanticScore: f.Cosine,
				KeywordScore:  f.KeywordScore,
			})
			if len(results) == topK {
				break
			}
		}
	} else {
		semantic, err := s.Vectors.Search(ctx, queryVec, topK)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		for _, r := range semantic {
			if r.Score < opts.MinScore {
				continue
			}
			results = append(results, &Result{
				Chunk:         s.Chunks[r.Position],
				Score:         r.Score,
				SemanticScore: r.Score,
			})
		}
	}
	if results == nil {
		results = []*Result{}
	}

	e.logger.Debug("retrieval finished",
		zap.Int("chunks", s.Size()),
		zap.Int("results", len(results)),
		zap.Bool("hybrid", hybrid),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}

// JoinContext joins the passage texts in rank order, separated by a blank line.
func JoinContext(results []*Result) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Content
	}
	return strings.Join(texts, ContextSeparator)
}
