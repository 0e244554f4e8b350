// Package rag answers questions from supplied context: chunk, embed, rank, generate.
package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/library"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Service builds a per-request retrieval session and asks the generator for an answer.
type Service struct {
	cfg       config.RetrievalConfig
	embedder  embedding.Embedder
	generator generation.Generator
	library   *library.Library
	indexer   *indexer.Indexer
	engine    *search.Engine
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithLibrary adds the reference library's documents to requests that ask for them.
func WithLibrary(lib *library.Library) Option {
	return func(s *Service) { s.library = lib }
}

// NewService creates a service. generator may be nil when only retrieval is used.
func NewService(cfg config.RetrievalConfig, embedder embedding.Embedder, generator generation.Generator, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		embedder:  embedder,
		generator: generator,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.LoggerOrNop(s.logger)
	s.indexer = indexer.NewIndexer(embedder, indexer.WithIndexType(cfg.IndexType), indexer.WithLogger(s.logger))
	s.engine = search.NewEngine(embedder, search.WithLogger(s.logger))
	return s
}

// Embedder returns the passage and question embedder.
func (s *Service) Embedder() embedding.Embedder {
	return s.embedder
}

// Generator returns the answer generator, or nil.
func (s *Service) Generator() generation.Generator {
	return s.generator
}

// Library returns the reference library, or nil.
func (s *Service) Library() *library.Library {
	return s.library
}

// retrieval holds the outcome of the shared retrieve step.
type retrieval struct {
	requestID string
	results   []*search.Result
	session   *search.Session
	context   string
}

// Ask retrieves the passages most similar to the question and generates an answer from them.
func (s *Service) Ask(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	if s.generator == nil {
		return nil, apperr.New(apperr.CodeGenerationConfigInvalid, "no answer generator configured")
	}
	r, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	defer r.session.Close()

	answer, err := s.generator.Generate(ctx, req.Question, r.context)
	if err != nil {
		return nil, s.classify(ctx, err, apperr.CodeServerInternalFailure, "failed to generate answer", r.requestID)
	}
	answer = strings.TrimSpace(answer)

	s.logger.Info("question answered",
		zap.String("request_id", r.requestID),
		zap.Int("chunks", r.session.Size()),
		zap.Int("sources", len(r.results)),
		zap.Int("context_chars", len([]rune(r.context))),
		zap.Duration("took", time.Since(start)),
	)
	return &models.AskResponse{
		RequestID: r.requestID,
		Question:  req.Question,
		Answer:    answer,
		Sources:   toSources(r.results, r.session),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// Retrieve returns the ranked passages and the context that Ask would send to the generator.
func (s *Service) Retrieve(ctx context.Context, req *models.AskRequest) (*models.RetrieveResponse, error) {
	start := time.Now()
	r, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	defer r.session.Close()
	return &models.RetrieveResponse{
		RequestID: r.requestID,
		Question:  req.Question,
		Context:   r.context,
		Sources:   toSources(r.results, r.session),
		Chunks:    r.session.Size(),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// Chunk splits text into passages with the request's or the configured max_chars.
func (s *Service) Chunk(req *models.ChunkRequest) (*models.ChunkResponse, error) {
	maxChars := req.MaxChars
	if maxChars == 0 {
		maxChars = s.cfg.MaxChars
	}
	chunks, err := indexer.ChunkText(req.Text, maxChars)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeChunkRequestInvalid, "invalid chunk request",
			apperr.Field("max_chars", maxChars))
	}
	return &models.ChunkResponse{Chunks: chunks, Count: len(chunks)}, nil
}

func (s *Service) retrieve(ctx context.Context, req *models.AskRequest) (*retrieval, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeAskRequestInvalid, "invalid ask request")
	}
	requestID := uuid.NewString()
	topK := req.TopK
	if topK == 0 {
		topK = s.cfg.TopK
	}
	maxChars := req.MaxChars
	if maxChars == 0 {
		maxChars = s.cfg.MaxChars
	}
	hybrid := s.cfg.Hybrid
	if req.Hybrid != nil {
		hybrid = *req.Hybrid
	}
	opts := search.Options{
		MinScore:       s.cfg.MinScoreOrDefault(),
		Hybrid:         hybrid,
		KeywordWeight:  s.cfg.KeywordWeight,
		SemanticWeight: s.cfg.SemanticWeight,
		FuzzyKeywords:  s.cfg.FuzzyKeywords,
		Fuzziness:      s.cfg.Fuzziness,
		PhraseBoost:    s.cfg.PhraseBoost,
	}
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}

	docs := s.documents(req)
	session, err := s.indexer.Build(ctx, docs, indexer.BuildOptions{MaxChars: maxChars, Hybrid: hybrid})
	if err != nil {
		if errors.Is(err, indexer.ErrInvalidArgument) {
			return nil, apperr.Wrap(err, apperr.CodeAskRequestInvalid, "invalid ask request")
		}
		return nil, s.classify(ctx, err, apperr.CodeIndexBuildFailure, "failed to index context", requestID)
	}
	results, err := s.engine.Retrieve(ctx, session, req.Question, topK, opts)
	if err != nil {
		_ = session.Close()
		return nil, s.classify(ctx, err, apperr.CodeRetrieveFailure, "failed to retrieve passages", requestID)
	}
	s.logger.Debug("passages retrieved",
		zap.String("request_id", requestID),
		zap.Int("documents", len(docs)),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)
	return &retrieval{
		requestID: requestID,
		results:   results,
		session:   session,
		context:   search.JoinContext(results),
	}, nil
}

// documents returns the request context as a document, followed by the library documents
// when the request asks for them or brings no context of its own.
func (s *Service) documents(req *models.AskRequest) []*models.Document {
	var docs []*models.Document
	if strings.TrimSpace(req.Context) != "" {
		docs = append(docs, &models.Document{
			ID:        models.RequestContextID,
			Content:   req.Context,
			UpdatedAt: time.Now(),
		})
	}
	if s.library != nil && (req.UseLibrary || len(docs) == 0) {
		docs = append(docs, s.library.Documents()...)
	}
	return docs
}

// classify codes context expiry as a timeout, keeps an existing code and otherwise uses fallback.
func (s *Service) classify(ctx context.Context, err error, fallback apperr.Code, msg, requestID string) error {
	s.logger.Error(msg, zap.String("request_id", requestID), zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.CodeAskTimeout, msg, apperr.Field("request_id", requestID))
	}
	code := apperr.CodeOf(err)
	if code == "" {
		code = fallback
	}
	return apperr.Wrap(err, code, msg, apperr.Field("request_id", requestID))
}

func toSources(results []*search.Result, session *search.Session) []*models.Source {
	sources := make([]*models.Source, len(results))
	for i, r := range results {
		src := &models.Source{
			Rank:          i + 1,
			Text:          r.Chunk.Content,
			Score:         r.Score,
			SemanticScore: r.SemanticScore,
			KeywordScore:  r.KeywordScore,
			DocumentID:    r.Chunk.DocumentID,
		}
		if doc := session.Documents[r.Chunk.DocumentID]; doc != nil {
			src.Title = doc.Title
		}
		sources[i] = src
	}
	return sources
}
