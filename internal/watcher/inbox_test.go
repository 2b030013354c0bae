package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/fileid"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	mu       sync.Mutex
	ingested map[string]bool // doc_id -> deleteSource
	deleted  []string
}

func (f *fakeIngester) IngestFile(_ context.Context, path, docID string, deleteSource bool) (*models.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingested == nil {
		f.ingested = map[string]bool{}
	}
	f.ingested[docID] = deleteSource
	if deleteSource {
		_ = os.Remove(path)
	}
	return &models.IngestResult{DocID: docID, Chunks: 1}, nil
}

func (f *fakeIngester) DeleteDocument(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, docID)
	return nil
}

func (f *fakeIngester) state() (map[string]bool, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for k, v := range f.ingested {
		out[k] = v
	}
	return out, append([]string(nil), f.deleted...)
}

func TestInbox_ingestsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Rules.md")
	require.NoError(t, writeFile(existing, "No pets."))

	ing := &fakeIngester{}
	in := NewInbox(ing, &config.WatchConfig{Directories: []string{dir}, Extensions: []string{".md", ".txt"}},
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, in.Start(ctx))
	defer in.Stop()

	dropped := filepath.Join(dir, "menu.txt")
	require.NoError(t, writeFile(dropped, "Soup."))

	waitFor(t, func() bool {
		got, _ := ing.state()
		return len(got) == 2
	})
	got, _ := ing.state()
	assert.Contains(t, got, fileid.DocID(existing))
	assert.Contains(t, got, fileid.DocID(dropped))

	require.NoError(t, os.Remove(dropped))
	waitFor(t, func() bool {
		_, deleted := ing.state()
		return len(deleted) == 1
	})
	_, deleted := ing.state()
	assert.Equal(t, fileid.DocID(dropped), deleted[0])
}

func TestInbox_deleteSourceKeepsDocument(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	in := NewInbox(ing, &config.WatchConfig{Directories: []string{dir}, DeleteSource: true},
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, in.Start(ctx))
	defer in.Stop()

	path := filepath.Join(dir, "faq.txt")
	require.NoError(t, writeFile(path, "Wifi is free."))
	waitFor(t, func() bool {
		got, _ := ing.state()
		return len(got) == 1
	})
	got, _ := ing.state()
	assert.True(t, got[fileid.DocID(path)], "source deletion must be requested")

	time.Sleep(150 * time.Millisecond)
	_, deleted := ing.state()
	assert.Empty(t, deleted, "removing an ingested source must not delete the document")
}

func TestInbox_directories(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	in := NewInbox(&fakeIngester{}, &config.WatchConfig{Directories: []string{a}})
	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.NoError(t, in.AddDirectory(b, false))
	assert.Len(t, in.Directories(), 2)
	require.NoError(t, in.RemoveDirectory(a))
	assert.Equal(t, []string{filepath.Clean(b)}, in.Directories())
}
