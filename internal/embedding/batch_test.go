package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/compendium/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowEmbedder answers later batches first to exercise reordering.
type slowEmbedder struct {
	*MockEmbedder
	inFlight, peak int32
}

func (s *slowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(time.Duration(10-len(texts)) * time.Millisecond)
	return s.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestEmbedInBatches_order(t *testing.T) {
	texts := make([]string, 23)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk number %d", i)
	}
	e := &slowEmbedder{MockEmbedder: NewMockEmbedder(32)}
	var mu sync.Mutex
	var batches []int
	got, err := EmbedInBatches(context.Background(), e, texts, BatchOptions{
		Size:        5,
		Concurrency: 3,
		OnBatch: func(batch, size int) {
			mu.Lock()
			batches = append(batches, batch)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, text := range texts {
		want, _ := e.MockEmbedder.Embed(context.Background(), text)
		assert.Equal(t, want, got[i], "vector %d out of order", i)
	}
	assert.Len(t, batches, 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&e.peak), int32(3))
}

func TestEmbedInBatches_empty(t *testing.T) {
	got, err := EmbedInBatches(context.Background(), NewMockEmbedder(8), nil, BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

type shortEmbedder struct{ *MockEmbedder }

func (s shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.MockEmbedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	return vecs[:len(vecs)-1], nil
}

func TestEmbedInBatches_lengthMismatch(t *testing.T) {
	_, err := EmbedInBatches(context.Background(), shortEmbedder{NewMockEmbedder(8)},
		[]string{"a", "b", "c"}, BatchOptions{Size: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexMismatch))
	assert.Equal(t, apperr.KindIndexMismatch, apperr.KindOf(err))
}

type failingEmbedder struct{ *MockEmbedder }

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperr.E(apperr.KindProvider, "create embeddings", errors.New("rate limited"))
}

func TestEmbedInBatches_providerError(t *testing.T) {
	_, err := EmbedInBatches(context.Background(), failingEmbedder{NewMockEmbedder(8)},
		[]string{"a", "b", "c"}, BatchOptions{Size: 1, Concurrency: 2})
	require.Error(t, err)
	assert.Equal(t, apperr.KindProvider, apperr.KindOf(err))
}
