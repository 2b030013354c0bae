package watcher

import (
	"context"
	"sync"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/fileid"
	"github.com/hyperjump/compendium/internal/models"
	"go.uber.org/zap"
)

// Ingester stores files as documents. *indexer.Indexer implements it.
type Ingester interface {
	IngestFile(ctx context.Context, path, docID string, deleteSource bool) (*models.IngestResult, error)
	DeleteDocument(ctx context.Context, docID string) error
}

// Inbox ingests files dropped into the watched directories under the ID
// fileid.DocID(path). Dropping a new version of a file at the same path
// supersedes the earlier one. Unless sources are deleted after ingestion,
// removing a file from the inbox deletes its document.
type Inbox struct {
	watcher      *Watcher
	ingester     Ingester
	deleteSource bool
	logger       *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewInbox creates an inbox over cfg.Directories.
func NewInbox(ing Ingester, cfg *config.WatchConfig, opts ...WatcherOption) *Inbox {
	in := &Inbox{ingester: ing, deleteSource: cfg.DeleteSource, logger: zap.NewNop(), ctx: context.Background()}
	var onGone func(string)
	if !cfg.DeleteSource {
		onGone = in.forget
	}
	in.watcher = NewWatcher(cfg.Directories, cfg.Extensions, in.ingest, onGone, opts...)
	in.logger = in.watcher.logger
	return in
}

// Start watches the inbox and ingests the files already in it.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	in.ctx = ctx
	in.mu.Unlock()
	if err := in.watcher.Start(ctx); err != nil {
		return err
	}
	go in.watcher.SyncExistingFiles()
	return nil
}

// Stop stops watching.
func (in *Inbox) Stop() { in.watcher.Stop() }

// Directories returns the watched directories.
func (in *Inbox) Directories() []string { return in.watcher.Directories() }

// AddDirectory watches another directory.
func (in *Inbox) AddDirectory(path string, syncExisting bool) error {
	return in.watcher.AddDirectory(path, syncExisting)
}

// RemoveDirectory stops watching a directory.
func (in *Inbox) RemoveDirectory(path string) error {
	return in.watcher.RemoveDirectory(path)
}

func (in *Inbox) context() context.Context {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ctx
}

func (in *Inbox) ingest(path string) {
	docID := fileid.DocID(path)
	res, err := in.ingester.IngestFile(in.context(), path, docID, in.deleteSource)
	if err != nil {
		in.logger.Error("inbox ingestion failed", zap.String("path", path), zap.String("doc_id", docID), zap.Error(err))
		return
	}
	in.logger.Info("inbox file ingested", zap.String("path", path), zap.String("doc_id", res.DocID), zap.Int("chunks", res.Chunks))
}

func (in *Inbox) forget(path string) {
	docID := fileid.DocID(path)
	err := in.ingester.DeleteDocument(in.context(), docID)
	switch {
	case err == nil:
		in.logger.Info("inbox file removed, document deleted", zap.String("path", path), zap.String("doc_id", docID))
	case apperr.Is(err, apperr.KindNotFound):
	default:
		in.logger.Error("inbox delete failed", zap.String("path", path), zap.String("doc_id", docID), zap.Error(err))
	}
}
