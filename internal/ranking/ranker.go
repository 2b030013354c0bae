// Package ranking orders a document's chunks by similarity to a query and
// assembles the prompt context from the best of them.
package ranking

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/compendium/internal/models"
)

// ErrDimensionMismatch is returned when a chunk embedding and the query
// embedding have different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ScoredChunk is a chunk with its cosine similarity to the query.
type ScoredChunk struct {
	Chunk models.Chunk
	Score float64
}

// Rank scores every chunk against query and returns them most similar first.
// Chunks with equal scores keep their input order. topN <= 0 or larger than
// the number of chunks returns all of them.
func Rank(query []float32, chunks []models.Chunk, topN int) ([]ScoredChunk, error) {
	scored := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, query has %d",
				ErrDimensionMismatch, c.ChunkID, len(c.Embedding), len(query))
		}
		scored[i] = ScoredChunk{Chunk: c, Score: CosineSimilarity(query, c.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topN > 0 && topN < len(scored) {
		scored = scored[:topN]
	}
	return scored, nil
}

// Texts returns the chunk texts of scored in order.
func Texts(scored []ScoredChunk) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk.Text
	}
	return out
}
