package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/compendium/internal/completion"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/embedding"
	"github.com/hyperjump/compendium/internal/extract"
	"github.com/hyperjump/compendium/internal/indexer"
	"github.com/hyperjump/compendium/internal/keyword"
	"github.com/hyperjump/compendium/internal/metrics"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/hyperjump/compendium/internal/search"
	"github.com/hyperjump/compendium/internal/storage"
	"github.com/hyperjump/compendium/internal/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testEnv struct {
	srv       *Server
	handler   http.Handler
	completer *completion.Static
	cfg       *config.Config
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	tok := tokenizer.WordTokenizer{}
	emb := embedding.NewMockEmbedder(64)
	m := metrics.New()
	chunker := indexer.NewChunker(tok, &cfg.Chunking)
	idx := indexer.NewIndexer(store, emb, chunker, extract.NewExtractor(), &cfg.Embedding,
		indexer.WithKeywordIndex(kw), indexer.WithMetrics(m))
	static := completion.NewStatic("Breakfast is from 7am.")
	engine := search.NewEngine(store, emb, static, tok, &cfg.Retrieval,
		search.WithKeywordIndex(kw), search.WithMetrics(m))

	opts = append([]Option{WithMetrics(m), WithKeywordIndex(kw)}, opts...)
	srv := NewServer(engine, idx, store, cfg, zap.NewNop(), opts...)
	return &testEnv{srv: srv, handler: srv.Router(), completer: static, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), "body must be an envelope")
	assert.Equal(t, rec.Code, resp.StatusCode)
	return rec.Code, resp
}

func dataAs[T any](t *testing.T, resp Response) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

const guide = "Breakfast is served from 7am in the lobby.\n\nThe pool closes at 9pm."

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/health-check", "/health"} {
		code, resp := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Server Up", resp.Message)
	}
}

func TestCreateEmbeddingsAndQuery(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodPost, "/api/v1/embeddings", models.EmbeddingRequest{Content: guide, DocID: "hotel"})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	res := dataAs[models.IngestResult](t, resp)
	assert.Equal(t, "hotel", res.DocID)
	assert.Equal(t, 1, res.Chunks)

	code, resp = env.do(t, http.MethodPost, "/api/v1/query", models.Query{QueryText: "When is breakfast?", DocID: "hotel"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, "Success", resp.Message)
	ans := dataAs[models.Answer](t, resp)
	assert.Equal(t, "Breakfast is from 7am.", ans.Answer)
	assert.Empty(t, ans.Prompt)

	code, resp = env.do(t, http.MethodPost, "/api/v1/query?debug=true", models.Query{QueryText: "When is breakfast?", DocID: "hotel"})
	require.Equal(t, http.StatusOK, code)
	ans = dataAs[models.Answer](t, resp)
	assert.True(t, strings.HasSuffix(ans.Prompt, "Question: When is breakfast?"))
	require.Len(t, ans.Ranked, 1)
}

func TestRequestTimeout_skipsIngestion(t *testing.T) {
	env := newTestEnv(t, WithRequestTimeout(time.Nanosecond))

	code, resp := env.do(t, http.MethodPost, "/api/v1/embeddings", models.EmbeddingRequest{Content: guide, DocID: "hotel"})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, _ = env.do(t, http.MethodPost, "/api/v1/query", models.Query{QueryText: "When is breakfast?", DocID: "hotel"})
	assert.NotEqual(t, http.StatusOK, code)
}

func TestQueryErrors(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/api/v1/query", models.Query{QueryText: "hi", DocID: "nope"})
	assert.Equal(t, http.StatusNotFound, code)

	code, resp := env.do(t, http.MethodPost, "/api/v1/query", models.Query{QueryText: "", DocID: "hotel"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "query_text")

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/embeddings", models.EmbeddingRequest{DocID: "x"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func multipartUpload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadThenIngest(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, multipartUpload(t, "guide.txt", guide))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	up := dataAs[UploadResult](t, resp)
	assert.Equal(t, "guide.txt", up.Filename)
	assert.Equal(t, int64(len(guide)), up.Size)
	assert.Equal(t, env.cfg.Storage.UploadDir, filepath.Dir(up.SourceFilePath))

	code, resp := env.do(t, http.MethodPost, "/api/v1/embeddings", models.EmbeddingRequest{
		SourceFilePath: up.SourceFilePath, DocID: "guide", DeleteSource: true,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	_, err := os.Stat(up.SourceFilePath)
	assert.True(t, os.IsNotExist(err), "uploaded source should be deleted after ingestion")
}

func TestUploadRejectsUnsupported(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, multipartUpload(t, "deck.pptx", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/upload", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/v1/embeddings", models.EmbeddingRequest{Content: guide, DocID: "hotel"})
	require.Equal(t, http.StatusCreated, code)

	code, resp := env.do(t, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, code)
	docs := dataAs[[]models.DocumentSummary](t, resp)
	require.Len(t, docs, 1)
	assert.Equal(t, "hotel", docs[0].DocID)

	code, _ = env.do(t, http.MethodGet, "/api/v1/documents?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodGet, "/api/v1/documents/hotel", nil)
	require.Equal(t, http.StatusOK, code)
	raw, _ := json.Marshal(resp.Data)
	assert.NotContains(t, string(raw), "embedding")
	set := dataAs[models.EmbeddingSet](t, resp)
	assert.Equal(t, []string{guide}, set.Texts())

	code, resp = env.do(t, http.MethodGet, "/api/v1/documents/hotel/search?q=pool", nil)
	require.Equal(t, http.StatusOK, code)
	hits := dataAs[[]keyword.ChunkHit](t, resp)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].ChunkID)

	code, _ = env.do(t, http.MethodGet, "/api/v1/documents/hotel/search", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodDelete, "/api/v1/documents/hotel", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodDelete, "/api/v1/documents/hotel", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, http.MethodGet, "/api/v1/documents/hotel", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusAndMetrics(t *testing.T) {
	env := newTestEnv(t, WithWatch(&mockWatchService{dirs: []string{"/srv/inbox"}}, ""))
	code, _ := env.do(t, http.MethodPost, "/api/v1/embeddings", models.EmbeddingRequest{Content: guide, DocID: "hotel"})
	require.Equal(t, http.StatusCreated, code)

	code, resp := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, code)
	st := dataAs[models.Status](t, resp)
	assert.Equal(t, int64(1), st.Documents)
	assert.Equal(t, int64(1), st.Chunks)
	assert.Equal(t, uint64(1), st.KeywordChunks)
	assert.Equal(t, "sqlite", st.StorageBackend)
	assert.Equal(t, []string{"/srv/inbox"}, st.WatchDirectories)
	assert.Positive(t, st.DiskUsageBytes)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "compendium_documents_ingested_total 1")
}

func TestWatchDirectories(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	assert.Equal(t, http.StatusNotImplemented, code)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	env = newTestEnv(t, WithWatch(mock, cfgPath))

	code, resp := env.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string][]string{"directories": {"/tmp/docs"}}, dataAs[map[string][]string](t, resp))

	inbox := t.TempDir()
	code, _ = env.do(t, http.MethodPost, "/api/v1/watch/directories", map[string]any{"path": inbox})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, []string{"/tmp/docs", inbox}, mock.dirs)

	saved, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/docs", inbox}, saved.Watch.Directories)

	code, _ = env.do(t, http.MethodPost, "/api/v1/watch/directories", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodDelete, "/api/v1/watch/directories?path=/tmp/docs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{inbox}, mock.dirs)
}

func TestClient(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	c := NewClient(ts.URL+"/", 5*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))
	res, err := c.Ingest(ctx, models.EmbeddingRequest{Content: guide, DocID: "hotel"})
	require.NoError(t, err)
	assert.Equal(t, "hotel", res.DocID)

	ans, err := c.Ask(ctx, models.Query{QueryText: "Breakfast?", DocID: "hotel"}, true)
	require.NoError(t, err)
	assert.Equal(t, "Breakfast is from 7am.", ans.Answer)
	assert.NotEmpty(t, ans.Prompt)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Documents)

	require.NoError(t, c.DeleteDocument(ctx, "hotel"))
	_, err = c.Ask(ctx, models.Query{QueryText: "Breakfast?", DocID: "hotel"}, false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
