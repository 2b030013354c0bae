package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/compendium/internal/models"
)

func hotelSet(docID string) *models.EmbeddingSet {
	return &models.EmbeddingSet{DocID: docID, Chunks: []models.Chunk{
		{ChunkID: 0, Text: "Breakfast is served from 7am to 10am in the Omnisyan lounge."},
		{ChunkID: 1, Text: "Checkout time is 11am. Late checkout can be requested at reception."},
		{ChunkID: 2, Text: "The swimming pool opens at 8am."},
	}}
}

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsChunk(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.IndexSet(ctx, hotelSet("hotel")); err != nil {
		t.Fatalf("IndexSet: %v", err)
	}

	hits, err := idx.Search(ctx, "hotel", "checkout", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	if hits[0].ChunkID != 1 || hits[0].DocID != "hotel" {
		t.Errorf("unexpected hit %+v", hits[0])
	}
	if hits[0].Text == "" {
		t.Error("hit text should be returned from the stored field")
	}

	// Standard analyzer: no stemming, case-insensitive.
	hits, err = idx.Search(ctx, "hotel", "omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != 0 {
		t.Errorf("expected chunk 0 for omnisyan, got %+v", hits)
	}
}

func TestBleveIndex_SearchScopedToDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.IndexSet(ctx, hotelSet("hotel-a")); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexSet(ctx, hotelSet("hotel-b")); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "hotel-b", "pool", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].DocID != "hotel-b" {
		t.Errorf("expected one hit in hotel-b, got %+v", hits)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("DocCount = %d, want 6", n)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.IndexSet(ctx, hotelSet("hotel")); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "hotel", "breakfst", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("exact search should not match a typo, got %+v", hits)
	}
	hits, err = idx.Search(ctx, "hotel", "breakfst", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ChunkID != 0 {
		t.Errorf("fuzzy search should find chunk 0, got %+v", hits)
	}
}

func TestBleveIndex_PhraseBoost(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.IndexSet(ctx, hotelSet("hotel")); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "hotel", "late checkout", 10, &SearchOptions{PhraseBoost: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].ChunkID != 1 {
		t.Errorf("expected chunk 1 first, got %+v", hits)
	}
}

func TestBleveIndex_ReindexReplacesChunks(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.IndexSet(ctx, hotelSet("hotel")); err != nil {
		t.Fatal(err)
	}
	smaller := &models.EmbeddingSet{DocID: "hotel", Chunks: []models.Chunk{{ChunkID: 0, Text: "Parking is free."}}}
	if err := idx.IndexSet(ctx, smaller); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	hits, _ := idx.Search(ctx, "hotel", "checkout", 10, nil)
	if len(hits) != 0 {
		t.Errorf("old chunks should be gone, got %+v", hits)
	}
}

func TestBleveIndex_DeleteDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.IndexSet(ctx, hotelSet("hotel")); err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteDocument(ctx, "hotel"); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 0 {
		t.Errorf("DocCount = %d after delete", n)
	}
	if err := idx.DeleteDocument(ctx, "missing"); err != nil {
		t.Errorf("deleting an unknown document should be a no-op: %v", err)
	}
}

func TestBleveIndex_OpenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexSet(context.Background(), hotelSet("hotel")); err != nil {
		t.Fatal(err)
	}
	_ = idx.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index dir should exist: %v", err)
	}
	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.DocCount(); n != 3 {
		t.Errorf("reopened DocCount = %d, want 3", n)
	}
}
