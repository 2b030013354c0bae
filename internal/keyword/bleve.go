package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/compendium/internal/models"
)

// BleveIndex implements ChunkIndex using Bleve. Each chunk is one Bleve
// document with ID "<doc_id>#<chunk_id>".
type BleveIndex struct {
	index bleve.Index
}

type chunkDoc struct {
	DocID   string `json:"doc_id"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
}

const deletePageSize = 1000

// NewBleveIndex creates or opens a Bleve index at path.
// If the path already exists, the existing index is opened and reused.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query for a
	// room number or product name matches the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("doc_id", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("chunk_id", bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func chunkKey(docID string, chunkID int) string {
	return docID + "#" + strconv.Itoa(chunkID)
}

// IndexSet replaces the chunks of set.DocID in one batch after removing the old ones.
func (b *BleveIndex) IndexSet(ctx context.Context, set *models.EmbeddingSet) error {
	if err := b.DeleteDocument(ctx, set.DocID); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, c := range set.Chunks {
		doc := chunkDoc{DocID: set.DocID, ChunkID: c.ChunkID, Text: c.Text}
		if err := batch.Index(chunkKey(set.DocID, c.ChunkID), doc); err != nil {
			return fmt.Errorf("failed to add chunk %d to batch: %w", c.ChunkID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// Search runs a match query over the text of docID's chunks.
func (b *BleveIndex) Search(ctx context.Context, docID, query string, limit int, opts *SearchOptions) ([]*ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}
	phraseBoost := 1.0
	fuzziness := 0
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		if opts.FuzzyEnabled {
			fuzziness = 1
			if opts.Fuzziness > 0 {
				fuzziness = opts.Fuzziness
			}
		}
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("text")
	if fuzziness > 0 {
		mq.SetFuzziness(fuzziness)
	}
	var textQuery blevequery.Query = mq
	if phraseBoost > 1.0 {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField("text")
		pq.SetBoost(phraseBoost)
		textQuery = bleve.NewDisjunctionQuery(mq, pq)
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(docFilter(docID), textQuery))
	req.Size = limit
	req.Fields = []string{"text", "chunk_id"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*ChunkHit, len(results.Hits))
	for i, hit := range results.Hits {
		h := &ChunkHit{DocID: docID, Score: hit.Score}
		if v, ok := hit.Fields["chunk_id"].(float64); ok {
			h.ChunkID = int(v)
		}
		if v, ok := hit.Fields["text"].(string); ok {
			h.Text = v
		}
		out[i] = h
	}
	return out, nil
}

func docFilter(docID string) blevequery.Query {
	tq := bleve.NewTermQuery(docID)
	tq.SetField("doc_id")
	return tq
}

// DeleteDocument removes every indexed chunk of docID.
func (b *BleveIndex) DeleteDocument(ctx context.Context, docID string) error {
	for {
		req := bleve.NewSearchRequest(docFilter(docID))
		req.Size = deletePageSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
	}
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
