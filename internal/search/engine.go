// Package search answers questions about a stored document: rank its chunks
// against the question, assemble a token-bounded prompt, and ask the model.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/completion"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/embedding"
	"github.com/hyperjump/compendium/internal/keyword"
	"github.com/hyperjump/compendium/internal/metrics"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/hyperjump/compendium/internal/ranking"
	"github.com/hyperjump/compendium/internal/storage"
	"github.com/hyperjump/compendium/internal/tokenizer"
	"go.uber.org/zap"
)

// Engine answers queries against stored embedding sets.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	completer    completion.Completer
	tok          tokenizer.Tokenizer
	keywordIndex keyword.ChunkIndex
	config       *config.RetrievalConfig
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records query outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithKeywordIndex enables SearchDocument.
func WithKeywordIndex(k keyword.ChunkIndex) Option {
	return func(e *Engine) { e.keywordIndex = k }
}

// NewEngine creates an engine. tok must be the tokenizer of the answering
// model so the prompt budget is measured in the model's own tokens.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	completer completion.Completer,
	tok tokenizer.Tokenizer,
	cfg *config.RetrievalConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		storage:   store,
		embedder:  embedder,
		completer: completer,
		tok:       tok,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Answer answers q from the newest embedding set of q.DocID. When the model
// replies with the uncertain sentinel the configured fallback message is
// returned with Fallback set; that is a successful answer, not an error.
// With debug set the answer also carries the prompt and the ranked chunks.
func (e *Engine) Answer(ctx context.Context, q models.Query, debug bool) (*models.Answer, error) {
	start := time.Now()
	answer, err := e.answer(ctx, q, debug)
	took := time.Since(start)
	switch {
	case err != nil:
		e.metrics.QueryAnswered(metrics.OutcomeError, took)
		e.logger.Warn("query failed", zap.String("doc_id", q.DocID), zap.Error(err))
		return nil, err
	case answer.Fallback:
		e.metrics.QueryAnswered(metrics.OutcomeFallback, took)
	default:
		e.metrics.QueryAnswered(metrics.OutcomeAnswered, took)
	}
	answer.TookMs = took.Milliseconds()
	e.logger.Info("query answered",
		zap.String("doc_id", answer.DocID),
		zap.Bool("fallback", answer.Fallback),
		zap.Duration("took", took))
	return answer, nil
}

func (e *Engine) answer(ctx context.Context, q models.Query, debug bool) (*models.Answer, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	set, err := e.storage.GetEmbeddingSet(ctx, q.DocID)
	if err != nil {
		return nil, err
	}
	queryVec, err := e.embedder.Embed(ctx, q.QueryText)
	if err != nil {
		return nil, apperr.E(apperr.KindProvider, "embed query", err)
	}
	ranked, err := ranking.Rank(queryVec, set.Chunks, e.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", q.DocID, err)
	}
	prompt := ranking.AssembleContext(e.tok, e.config.Preamble, q.QueryText, ranking.Texts(ranked), e.config.TokenBudget)
	e.logger.Debug("prompt assembled",
		zap.String("doc_id", q.DocID),
		zap.Int("ranked", len(ranked)),
		zap.Int("prompt_tokens", e.tok.Count(prompt)))

	reply, err := e.completer.Complete(ctx, e.config.SystemPrompt, prompt)
	if err != nil {
		return nil, apperr.E(apperr.KindProvider, "complete", err)
	}

	out := &models.Answer{DocID: q.DocID, Answer: reply}
	if strings.TrimSpace(reply) == e.config.UncertainSentinel {
		out.Answer = e.config.FallbackMessage
		out.Fallback = true
	}
	if debug {
		out.Prompt = prompt
		out.Ranked = make([]models.RankedChunk, len(ranked))
		for i, r := range ranked {
			out.Ranked[i] = models.RankedChunk{ChunkID: r.Chunk.ChunkID, Text: r.Chunk.Text, Score: r.Score}
		}
	}
	return out, nil
}

// SearchDocument runs a keyword lookup over the chunks of docID. Hit text
// is shortened to snippetLen runes when snippetLen > 0.
func (e *Engine) SearchDocument(ctx context.Context, docID, query string, limit, snippetLen int) ([]*keyword.ChunkHit, error) {
	docID, query = strings.TrimSpace(docID), strings.TrimSpace(query)
	if docID == "" || query == "" {
		return nil, apperr.Input("search document", "doc_id and q are required")
	}
	if e.keywordIndex == nil {
		return nil, fmt.Errorf("keyword index is not configured")
	}
	hits, err := e.keywordIndex.Search(ctx, docID, query, limit, &keyword.SearchOptions{
		PhraseBoost:  1.5,
		FuzzyEnabled: true,
		Fuzziness:    1,
	})
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		h.Text = Snippet(h.Text, snippetLen)
	}
	return hits, nil
}
