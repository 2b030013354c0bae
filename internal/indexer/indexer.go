package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/embedding"
	"github.com/hyperjump/compendium/internal/extract"
	"github.com/hyperjump/compendium/internal/fileid"
	"github.com/hyperjump/compendium/internal/keyword"
	"github.com/hyperjump/compendium/internal/metrics"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/hyperjump/compendium/internal/storage"
	"go.uber.org/zap"
)

// Indexer turns documents into stored embedding sets: extract, chunk, embed
// in batches, store, and index the chunks for keyword lookup.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	chunker      *Chunker
	keywordIndex keyword.ChunkIndex // optional
	extractor    *extract.Extractor
	batchSize    int
	concurrency  int
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithMetrics records documents, chunks, truncations and embedding batches.
func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(idx *Indexer) { idx.metrics = m }
}

// WithKeywordIndex also indexes stored chunks for keyword lookup.
func WithKeywordIndex(k keyword.ChunkIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// NewIndexer creates an indexer. extractor may be nil, in which case files are read as plain text.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	chunker *Chunker,
	extractor *extract.Extractor,
	cfg *config.EmbeddingConfig,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     store,
		embedder:    embedder,
		chunker:     chunker,
		extractor:   extractor,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest handles an embedding request. A source file wins over inline content.
// A missing doc_id is derived from the file name, or generated for inline content.
func (idx *Indexer) Ingest(ctx context.Context, req models.EmbeddingRequest) (*models.IngestResult, error) {
	docID := strings.TrimSpace(req.DocID)
	if req.SourceFilePath != "" {
		return idx.IngestFile(ctx, req.SourceFilePath, docID, req.DeleteSource)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.Input("ingest", "source_file_path or content is required")
	}
	if docID == "" {
		docID = fileid.Generate()
	}
	return idx.IngestDocument(ctx, docID, req.Content)
}

// IngestDocument chunks, embeds and stores text under docID. Nothing is
// stored unless every chunk was embedded. Re-ingesting a doc_id adds a new
// set which supersedes the earlier ones.
func (idx *Indexer) IngestDocument(ctx context.Context, docID, text string) (*models.IngestResult, error) {
	start := time.Now()
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, apperr.Input("ingest", "doc_id cannot be empty")
	}
	text = Preprocess(text)
	if text == "" {
		return nil, apperr.Input("ingest", "document has no text")
	}

	chunks, truncs := idx.chunker.Chunk(text)
	for range truncs {
		idx.metrics.ChunkTruncated()
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := embedding.EmbedInBatches(ctx, idx.embedder, texts, embedding.BatchOptions{
		Size:        idx.batchSize,
		Concurrency: idx.concurrency,
		Logger:      idx.logger,
		OnBatch:     func(int, int) { idx.metrics.EmbeddingBatch() },
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.E(apperr.KindProvider, "embed chunks", err)
		}
		return nil, fmt.Errorf("ingest %s: %w", docID, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}

	set := &models.EmbeddingSet{DocID: docID, Chunks: chunks, CreatedAt: time.Now().UTC()}
	if err := idx.storage.InsertEmbeddingSet(ctx, set); err != nil {
		return nil, fmt.Errorf("failed to store embeddings: %w", err)
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.IndexSet(ctx, set); err != nil {
			idx.logger.Warn("keyword indexing failed", zap.String("doc_id", docID), zap.Error(err))
		}
	}

	took := time.Since(start)
	idx.metrics.DocumentIngested(len(chunks), took)
	idx.logger.Info("document ingested",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Int("truncations", len(truncs)),
		zap.Duration("took", took))
	return &models.IngestResult{
		DocID:       docID,
		Chunks:      len(chunks),
		Truncations: len(truncs),
		TookMs:      took.Milliseconds(),
	}, nil
}

// IngestFile extracts the text of the file at path and ingests it. An empty
// docID is derived from the path with fileid.DocID. When deleteSource is set
// the file is removed once its text has been extracted.
func (idx *Indexer) IngestFile(ctx context.Context, path, docID string, deleteSource bool) (*models.IngestResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.E(apperr.KindInput, "ingest file", err)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.Input("ingest file", "not a regular file: "+absPath)
	}
	ext := filepath.Ext(absPath)
	if idx.extractor != nil && !idx.extractor.Supports(ext) {
		return nil, apperr.E(apperr.KindInput, "ingest file", fmt.Errorf("%w: %q", extract.ErrUnsupportedFormat, ext))
	}
	if docID == "" {
		docID = fileid.DocID(absPath)
	}
	idx.logger.Debug("extracting file", zap.String("path", absPath), zap.String("doc_id", docID))
	text, err := idx.extractContent(absPath)
	if err != nil {
		return nil, apperr.E(apperr.KindInput, "extract "+filepath.Base(absPath), err)
	}
	if deleteSource {
		if err := os.Remove(absPath); err != nil {
			idx.logger.Warn("could not delete source file", zap.String("path", absPath), zap.Error(err))
		}
	}
	return idx.IngestDocument(ctx, docID, text)
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is in allowedExts (all supported files when allowedExts is empty).
// It returns the number of files ingested and stops at the first error.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if idx.extractor != nil && !idx.extractor.Supports(ext) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := idx.IngestFile(ctx, path, "", false); ingestErr != nil {
			return ingestErr
		}
		n++
		return nil
	})
	return n, err
}

// SyncKeywordIndex indexes the latest set of every stored document. Used
// when the keyword index was opened empty over an existing store.
func (idx *Indexer) SyncKeywordIndex(ctx context.Context) (int, error) {
	if idx.keywordIndex == nil {
		return 0, nil
	}
	const page = 100
	n := 0
	for offset := 0; ; offset += page {
		docs, err := idx.storage.ListDocuments(ctx, offset, page)
		if err != nil {
			return n, fmt.Errorf("list documents: %w", err)
		}
		for _, d := range docs {
			set, err := idx.storage.GetEmbeddingSet(ctx, d.DocID)
			if err != nil {
				return n, err
			}
			if err := idx.keywordIndex.IndexSet(ctx, set); err != nil {
				return n, fmt.Errorf("index %s: %w", d.DocID, err)
			}
			n++
		}
		if len(docs) < page {
			return n, nil
		}
	}
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes every stored set of id and its keyword entries.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	idx.logger.Debug("deleting document", zap.String("doc_id", id))
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.DeleteDocument(ctx, id); err != nil {
			idx.logger.Warn("keyword delete failed", zap.String("doc_id", id), zap.Error(err))
		}
	}
	idx.logger.Info("document deleted", zap.String("doc_id", id))
	return nil
}
