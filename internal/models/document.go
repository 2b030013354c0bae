// Package models defines core data structures for embedding sets, queries, and answers.
package models

import "time"

// Chunk is one piece of a document with its embedding.
// ChunkID is the 0-based position of the chunk in its document.
type Chunk struct {
	ChunkID   int       `json:"chunk_id" bson:"chunk_id"`
	Text      string    `json:"text" bson:"text"`
	Embedding []float32 `json:"embedding,omitempty" bson:"embedding"`
}

// EmbeddingSet is the stored record for one ingestion of a document.
// A document may have several sets; the most recent one is authoritative.
type EmbeddingSet struct {
	DocID     string    `json:"doc_id" bson:"doc_id"`
	Chunks    []Chunk   `json:"text_chunks" bson:"text_chunks"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Texts returns the chunk texts in chunk order.
func (s *EmbeddingSet) Texts() []string {
	texts := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		texts[i] = c.Text
	}
	return texts
}

// WithoutEmbeddings returns a copy of the set with embeddings stripped, for API responses.
func (s *EmbeddingSet) WithoutEmbeddings() *EmbeddingSet {
	out := &EmbeddingSet{DocID: s.DocID, CreatedAt: s.CreatedAt, Chunks: make([]Chunk, len(s.Chunks))}
	for i, c := range s.Chunks {
		out.Chunks[i] = Chunk{ChunkID: c.ChunkID, Text: c.Text}
	}
	return out
}

// DocumentSummary describes the latest stored set of a document.
type DocumentSummary struct {
	DocID      string    `json:"doc_id"`
	ChunkCount int       `json:"chunk_count"`
	Sets       int       `json:"sets"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingRequest asks for a document to be extracted, chunked, embedded and stored.
// Exactly one of SourceFilePath or Content is used; SourceFilePath wins when both are set.
type EmbeddingRequest struct {
	SourceFilePath string `json:"source_file_path,omitempty"`
	Content        string `json:"content,omitempty"`
	DocID          string `json:"doc_id,omitempty"`
	DeleteSource   bool   `json:"delete_source,omitempty"`
}

// IngestResult reports what an ingestion stored.
type IngestResult struct {
	DocID       string `json:"doc_id"`
	Chunks      int    `json:"chunks"`
	Truncations int    `json:"truncations"`
	TookMs      int64  `json:"took_ms"`
}
