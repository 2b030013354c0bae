package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithLogger sets a logger for request-level debug output.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// NewOpenAIEmbedder creates an embedder from provider and embedding settings.
// Returns an error if the API key environment variable is empty.
func NewOpenAIEmbedder(provider *config.ProviderConfig, cfg *config.EmbeddingConfig, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	key := provider.APIKey()
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", provider.APIKeyEnv)
	}
	c := openai.DefaultConfig(key)
	if provider.BaseURL != "" {
		c.BaseURL = provider.BaseURL
	}
	c.HTTPClient = &http.Client{Timeout: time.Duration(provider.TimeoutSeconds) * time.Second}
	e := &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(c),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the embedding of a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The response must hold exactly one
// vector per input with each vector's reported index equal to its position;
// anything else is ErrIndexMismatch.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	res, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, apperr.E(apperr.KindProvider, "create embeddings", describeAPIError(err))
	}
	if len(res.Data) != len(texts) {
		return nil, apperr.E(apperr.KindIndexMismatch, "create embeddings",
			fmt.Errorf("%w: sent %d texts, got %d vectors", ErrIndexMismatch, len(texts), len(res.Data)))
	}
	out := make([][]float32, len(texts))
	for i, d := range res.Data {
		if d.Index != i {
			return nil, apperr.E(apperr.KindIndexMismatch, "create embeddings",
				fmt.Errorf("%w: vector at position %d reports index %d", ErrIndexMismatch, i, d.Index))
		}
		out[i] = d.Embedding
	}
	if e.logger != nil {
		e.logger.Debug("embeddings created",
			zap.Int("texts", len(texts)),
			zap.Int("tokens", res.Usage.TotalTokens),
			zap.Duration("took", time.Since(start)))
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op; the HTTP client needs no cleanup.
func (e *OpenAIEmbedder) Close() error { return nil }

func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("provider returned %d (%s): %w", apiErr.HTTPStatusCode, apiErr.Type, err)
	}
	return err
}
