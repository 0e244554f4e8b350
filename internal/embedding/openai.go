package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures an OpenAI-compatible /embeddings endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, defaults to the OpenAI API
	Model   string
	// Dimensions, when set, is the expected vector length; otherwise the first response sets it.
	Dimensions int
	// PassageInputType and QueryInputType are sent as the non-standard "input_type" field
	// understood by retrieval models such as NVIDIA NeMo Retriever. Empty omits the field.
	PassageInputType string
	QueryInputType   string
	Truncate         string
	BatchSize        int
	Concurrency      int
	// RequestsPerSecond limits outgoing requests; 0 disables the limiter.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxRetries        int
}

// OpenAIEmbedder embeds text through an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client  openai.Client
	cfg     OpenAIConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	mu         sync.RWMutex
	dimensions int
}

// NewOpenAIEmbedder creates an embedder. Returns an error if the API key or model is missing.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.CodeEmbeddingConfigInvalid, "embedding API key is not set")
	}
	if cfg.Model == "" {
		return nil, apperr.New(apperr.CodeEmbeddingConfigInvalid, "embedding model is not set")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		cfg:        cfg,
		limiter:    limiter,
		logger:     utils.LoggerOrNop(logger),
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed returns the passage embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, e.cfg.PassageInputType)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery returns the query embedding for text.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, e.cfg.QueryInputType)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds passages in batches of BatchSize, running up to Concurrency
// requests at once. The result order matches texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, e.cfg.PassageInputType)
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, e.cfg.Concurrency)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				fail(ctx.Err())
				return
			}
			defer func() { <-sem }()

			vecs, err := e.request(ctx, texts[start:end], inputType)
			if err != nil {
				fail(err)
				return
			}
			copy(out[start:end], vecs)
		}(start, end)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, batch []string, inputType string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		Model:          openai.EmbeddingModel(e.cfg.Model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	var opts []option.RequestOption
	if inputType != "" {
		opts = append(opts, option.WithJSONSet("input_type", inputType))
	}
	if e.cfg.Truncate != "" {
		opts = append(opts, option.WithJSONSet("truncate", e.cfg.Truncate))
	}

	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, params, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Wrap(err, apperr.CodeEmbeddingUpstreamFailure, "embedding request failed",
			apperr.Field("model", e.cfg.Model), apperr.Field("inputs", len(batch)))
	}
	if len(resp.Data) != len(batch) {
		return nil, apperr.New(apperr.CodeEmbeddingUpstreamInvalid,
			fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(resp.Data)))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(batch))
	for i, d := range data {
		if int(d.Index) != i {
			return nil, apperr.New(apperr.CodeEmbeddingUpstreamInvalid,
				fmt.Sprintf("embedding response has unexpected index %d", d.Index))
		}
		vec := utils.Float64sToFloat32s(d.Embedding)
		if err := e.checkDimensions(len(vec)); err != nil {
			return nil, err
		}
		vecs[i] = vec
	}

	e.logger.Debug("embedding batch completed",
		zap.String("model", e.cfg.Model),
		zap.String("input_type", inputType),
		zap.Int("inputs", len(batch)),
		zap.Duration("took", time.Since(start)),
	)
	return vecs, nil
}

// checkDimensions fixes the dimensionality on first use and rejects later mismatches.
func (e *OpenAIEmbedder) checkDimensions(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == 0 {
		return apperr.New(apperr.CodeEmbeddingUpstreamInvalid, "embedding response contains an empty vector")
	}
	if e.dimensions == 0 {
		e.dimensions = n
		return nil
	}
	if n != e.dimensions {
		return apperr.New(apperr.CodeEmbeddingUpstreamInvalid,
			fmt.Sprintf("embedding has %d dimensions, expected %d", n, e.dimensions))
	}
	return nil
}

// Dimensions returns the embedding length, or 0 before the first response.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimensions
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.cfg.Model
}

// Close is a no-op; the HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
