// Package storage persists embedding sets keyed by document ID.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/models"
)

// ErrNotFound is returned when a document has no stored embedding set.
var ErrNotFound = errors.New("no embeddings stored for document")

// Storage defines embedding set persistence. A document may be ingested
// more than once; every ingestion adds a set and reads return the newest.
type Storage interface {
	InsertEmbeddingSet(ctx context.Context, set *models.EmbeddingSet) error
	// GetEmbeddingSet returns the most recently inserted set for docID.
	GetEmbeddingSet(ctx context.Context, docID string) (*models.EmbeddingSet, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentSummary, error)
	// DeleteDocument removes every set of docID.
	DeleteDocument(ctx context.Context, docID string) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return NewSQLiteStorage(cfg.DatabasePath)
	case config.BackendMongo:
		return NewMongoStorage(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func notFound(docID string) error {
	return apperr.E(apperr.KindNotFound, "get embedding set", fmt.Errorf("%w: %s", ErrNotFound, docID))
}

func validateSet(set *models.EmbeddingSet) error {
	if set.DocID == "" {
		return apperr.Input("insert embedding set", "doc_id cannot be empty")
	}
	for i, c := range set.Chunks {
		if c.ChunkID != i {
			return fmt.Errorf("chunk at position %d has chunk_id %d", i, c.ChunkID)
		}
	}
	return nil
}
