// Package embedding turns text into vectors through a remote provider or a
// deterministic local stand-in, with batching and caching helpers.
package embedding

import (
	"context"
	"errors"
)

// Embedder produces vector embeddings for text.
// EmbedBatch returns one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ErrIndexMismatch is returned when a provider response cannot be lined up
// with the request: wrong number of vectors, or a vector reported at an
// unexpected position. The whole ingestion is abandoned; it is not retried.
var ErrIndexMismatch = errors.New("embedding response does not match request")
