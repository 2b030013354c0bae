package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/compendium/internal/apperr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchOptions controls EmbedInBatches.
type BatchOptions struct {
	// Size is the number of texts per provider call. Defaults to 50.
	Size int
	// Concurrency bounds the number of calls in flight. Defaults to 1.
	Concurrency int
	Logger      *zap.Logger
	// OnBatch is called after each batch succeeds with its index and size.
	OnBatch func(batch, size int)
}

// EmbedInBatches embeds texts in fixed-size batches, running up to
// opts.Concurrency batches at once, and returns the vectors in input order.
// The first failing batch cancels the rest and its error is returned; no
// partial result is returned.
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, opts BatchOptions) ([][]float32, error) {
	if opts.Size <= 0 {
		opts.Size = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(texts); start += opts.Size {
		start := start // per-iteration copy (go1.22+ loopvar semantics under go 1.21)
		end := min(start+opts.Size, len(texts))
		batch := start / opts.Size
		g.Go(func() error {
			if opts.Logger != nil {
				opts.Logger.Debug("embedding batch",
					zap.Int("batch", batch), zap.Int("from", start), zap.Int("to", end-1))
			}
			vecs, err := e.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d: %w", batch, err)
			}
			if len(vecs) != end-start {
				return apperr.E(apperr.KindIndexMismatch, fmt.Sprintf("batch %d", batch),
					fmt.Errorf("%w: sent %d texts, got %d vectors", ErrIndexMismatch, end-start, len(vecs)))
			}
			copy(out[start:end], vecs)
			if opts.OnBatch != nil {
				opts.OnBatch(batch, end-start)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
