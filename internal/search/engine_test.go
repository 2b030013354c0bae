package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/completion"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/embedding"
	"github.com/hyperjump/compendium/internal/indexer"
	"github.com/hyperjump/compendium/internal/keyword"
	"github.com/hyperjump/compendium/internal/metrics"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/hyperjump/compendium/internal/storage"
	"github.com/hyperjump/compendium/internal/tokenizer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handbook = "Breakfast is served from 7am in the lobby.\n\n" +
	"The pool closes at 9pm every evening.\n\n" +
	"Parking costs ten dollars per night."

type fixture struct {
	engine    *Engine
	completer *completion.Static
	metrics   *metrics.Metrics
	cfg       *config.RetrievalConfig
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	kw, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	tok := tokenizer.WordTokenizer{}
	emb := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(256), 10)
	chunker := indexer.NewChunker(tok, &config.ChunkingConfig{MaxTokens: 10, MaxRecursion: 5})
	idx := indexer.NewIndexer(store, emb, chunker, nil,
		&config.EmbeddingConfig{BatchSize: 50}, indexer.WithKeywordIndex(kw))
	_, err = idx.IngestDocument(ctx, "hotel", handbook)
	require.NoError(t, err)

	cfg := config.Default().Retrieval
	m := metrics.New()
	static := completion.NewStatic(reply)
	return &fixture{
		engine:    NewEngine(store, emb, static, tok, &cfg, WithMetrics(m), WithKeywordIndex(kw)),
		completer: static,
		metrics:   m,
		cfg:       &cfg,
	}
}

func TestEngine_Answer(t *testing.T) {
	f := newFixture(t, "From 7am.")
	ans, err := f.engine.Answer(context.Background(), models.Query{
		QueryText: "  When is breakfast served? ",
		DocID:     "hotel",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "hotel", ans.DocID)
	assert.Equal(t, "From 7am.", ans.Answer)
	assert.False(t, ans.Fallback)
	assert.Empty(t, ans.Prompt)
	assert.Nil(t, ans.Ranked)

	system, user := f.completer.LastPrompts()
	assert.Equal(t, f.cfg.SystemPrompt, system)
	assert.True(t, strings.HasPrefix(user, f.cfg.Preamble+"\"\"\"\nBreakfast is served from 7am in the lobby.\n\"\"\""))
	assert.True(t, strings.HasSuffix(user, "\n\nQuestion: When is breakfast served?"))
	// top_k defaults to 2: two blocks, four fences
	assert.Equal(t, 4, strings.Count(user, "\"\"\""))
}

func TestEngine_AnswerDebug(t *testing.T) {
	f := newFixture(t, "At 9pm.")
	ans, err := f.engine.Answer(context.Background(), models.Query{
		QueryText: "When does the pool close?",
		DocID:     "hotel",
	}, true)
	require.NoError(t, err)
	require.Len(t, ans.Ranked, 2)
	assert.Equal(t, 1, ans.Ranked[0].ChunkID)
	assert.GreaterOrEqual(t, ans.Ranked[0].Score, ans.Ranked[1].Score)
	_, user := f.completer.LastPrompts()
	assert.Equal(t, user, ans.Prompt)
}

func TestEngine_AnswerFallback(t *testing.T) {
	f := newFixture(t, " UNCERTAIN\n")
	ans, err := f.engine.Answer(context.Background(), models.Query{
		QueryText: "Is there a casino?",
		DocID:     "hotel",
	}, false)
	require.NoError(t, err)
	assert.True(t, ans.Fallback)
	assert.Equal(t, config.DefaultFallbackMessage, ans.Answer)
}

func TestEngine_AnswerSentinelMustBeWholeReply(t *testing.T) {
	f := newFixture(t, "I am UNCERTAIN about that.")
	ans, err := f.engine.Answer(context.Background(), models.Query{QueryText: "Casino?", DocID: "hotel"}, false)
	require.NoError(t, err)
	assert.False(t, ans.Fallback)
	assert.Equal(t, "I am UNCERTAIN about that.", ans.Answer)
}

func TestEngine_AnswerBudgetExcludesChunks(t *testing.T) {
	f := newFixture(t, "ok")
	f.cfg.TokenBudget = 1
	_, err := f.engine.Answer(context.Background(), models.Query{QueryText: "Parking?", DocID: "hotel"}, false)
	require.NoError(t, err)
	_, user := f.completer.LastPrompts()
	assert.Equal(t, f.cfg.Preamble+"\n\nQuestion: Parking?", user)
}

func TestEngine_AnswerErrors(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, "ok")
	_, err := f.engine.Answer(ctx, models.Query{QueryText: " ", DocID: "hotel"}, false)
	assert.True(t, apperr.Is(err, apperr.KindInput))
	_, err = f.engine.Answer(ctx, models.Query{QueryText: "hi", DocID: ""}, false)
	assert.True(t, apperr.Is(err, apperr.KindInput))

	_, err = f.engine.Answer(ctx, models.Query{QueryText: "hi", DocID: "missing"}, false)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Equal(t, 0, f.completer.Calls())

	f.completer.Err = errors.New("rate limited")
	_, err = f.engine.Answer(ctx, models.Query{QueryText: "hi", DocID: "hotel"}, false)
	assert.True(t, apperr.Is(err, apperr.KindProvider))
}

func TestEngine_AnswerMetrics(t *testing.T) {
	f := newFixture(t, "ok")
	ctx := context.Background()
	_, err := f.engine.Answer(ctx, models.Query{QueryText: "Parking?", DocID: "hotel"}, false)
	require.NoError(t, err)
	_, _ = f.engine.Answer(ctx, models.Query{QueryText: "Parking?", DocID: "missing"}, false)

	n, err := testutil.GatherAndCount(f.metrics.Registry(), "compendium_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series each for answered and error")
}

func TestEngine_SearchDocument(t *testing.T) {
	f := newFixture(t, "ok")
	ctx := context.Background()

	hits, err := f.engine.SearchDocument(ctx, "hotel", "pool", 5, 8)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].ChunkID)
	assert.Equal(t, "The pool...", hits[0].Text)

	_, err = f.engine.SearchDocument(ctx, "hotel", " ", 5, 0)
	assert.True(t, apperr.Is(err, apperr.KindInput))
}
