// Package keyword provides keyword (BM25) lookup over the stored chunks of a document.
package keyword

import (
	"context"

	"github.com/hyperjump/compendium/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// PhraseBoost multiplies the score when query terms appear together as a phrase.
	// Values > 1 boost chunks containing the exact phrase (e.g. 1.5). Use 1.0 for no boost.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// ChunkIndex indexes chunk text per document for keyword lookup.
type ChunkIndex interface {
	// IndexSet replaces the indexed chunks of set.DocID with the chunks of set.
	IndexSet(ctx context.Context, set *models.EmbeddingSet) error
	// Search returns the chunks of docID matching query, best first.
	Search(ctx context.Context, docID, query string, limit int, opts *SearchOptions) ([]*ChunkHit, error)
	DeleteDocument(ctx context.Context, docID string) error
	// DocCount returns the total number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}

// ChunkHit is a single keyword search hit.
type ChunkHit struct {
	DocID   string  `json:"doc_id"`
	ChunkID int     `json:"chunk_id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}
