// Package indexer splits documents into token-bounded chunks, embeds them, and stores the result.
package indexer

import (
	"strings"

	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/hyperjump/compendium/internal/tokenizer"
	"go.uber.org/zap"
)

// Truncation describes text that could not be split below the token limit
// and was cut instead. Content past TruncatedTokens is lost.
type Truncation struct {
	OriginalTokens  int
	TruncatedTokens int
}

// Chunker splits text into chunks of at most maxTokens tokens, preferring
// paragraph boundaries, then line boundaries, then sentence boundaries.
// A Chunker holds no mutable state and is safe for concurrent use.
type Chunker struct {
	tok              tokenizer.Tokenizer
	maxTokens        int
	maxDepth         int
	delimiters       []string
	sectionDelimiter string
	onTruncate       func(Truncation)
	logger           *zap.Logger
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithTruncationHook registers fn to be called for every truncated chunk.
func WithTruncationHook(fn func(Truncation)) ChunkerOption {
	return func(c *Chunker) { c.onTruncate = fn }
}

// WithChunkerLogger logs a warning for every truncated chunk.
func WithChunkerLogger(l *zap.Logger) ChunkerOption {
	return func(c *Chunker) { c.logger = l }
}

// NewChunker creates a chunker measuring size with tok.
func NewChunker(tok tokenizer.Tokenizer, cfg *config.ChunkingConfig, opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		tok:              tok,
		maxTokens:        cfg.MaxTokens,
		maxDepth:         cfg.MaxRecursion,
		delimiters:       cfg.Delimiters,
		sectionDelimiter: cfg.SectionDelimiter,
	}
	if c.maxDepth < 0 {
		c.maxDepth = 0
	}
	if len(c.delimiters) == 0 {
		c.delimiters = config.DefaultDelimiters()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split splits a whole document. The document is first cut into sections on
// the section delimiter; each section is split on its own, so no chunk spans
// two sections. Whitespace-only sections produce no chunks.
func (c *Chunker) Split(text string) []string {
	chunks, _ := c.split(text)
	return chunks
}

// Chunk splits text and numbers the chunks from 0. It also reports every
// truncation that happened along the way.
func (c *Chunker) Chunk(text string) ([]models.Chunk, []Truncation) {
	texts, truncs := c.split(text)
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{ChunkID: i, Text: t}
	}
	return chunks, truncs
}

func (c *Chunker) split(text string) ([]string, []Truncation) {
	var sections []string
	if c.sectionDelimiter == "" {
		sections = []string{text}
	} else {
		sections = strings.Split(text, c.sectionDelimiter)
	}
	var chunks []string
	var truncs []Truncation
	for _, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}
		chunks = append(chunks, c.splitRecursive(section, c.maxTokens, c.delimiters, c.maxDepth, &truncs)...)
	}
	return chunks, truncs
}

// SplitRecursive splits text into pieces of at most maxTokens tokens by
// halving on the first delimiter that yields two non-empty halves and
// recursing into each half. When depth reaches 0, or no delimiter splits the
// text, the text is truncated to maxTokens. Pieces keep document order.
func (c *Chunker) SplitRecursive(text string, maxTokens int, delimiters []string, depth int) []string {
	return c.splitRecursive(text, maxTokens, delimiters, depth, nil)
}

func (c *Chunker) splitRecursive(text string, maxTokens int, delimiters []string, depth int, truncs *[]Truncation) []string {
	n := c.tok.Count(text)
	if n <= maxTokens {
		return []string{text}
	}
	if depth <= 0 {
		return []string{c.truncate(text, n, maxTokens, truncs)}
	}
	for _, delim := range delimiters {
		left, right := HalveByDelimiter(c.tok, text, delim)
		if left == "" || right == "" {
			continue
		}
		out := c.splitRecursive(left, maxTokens, delimiters, depth-1, truncs)
		return append(out, c.splitRecursive(right, maxTokens, delimiters, depth-1, truncs)...)
	}
	return []string{c.truncate(text, n, maxTokens, truncs)}
}

func (c *Chunker) truncate(text string, n, maxTokens int, truncs *[]Truncation) string {
	cut := c.tok.Truncate(text, maxTokens)
	t := Truncation{OriginalTokens: n, TruncatedTokens: c.tok.Count(cut)}
	if truncs != nil {
		*truncs = append(*truncs, t)
	}
	if c.onTruncate != nil {
		c.onTruncate(t)
	}
	if c.logger != nil {
		c.logger.Warn("chunk truncated",
			zap.Int("original_tokens", t.OriginalTokens),
			zap.Int("truncated_tokens", t.TruncatedTokens))
	}
	return cut
}

// HalveByDelimiter splits text in two on delim, choosing the cut so that the
// left half's token count is near half of the whole.
//
// With no delimiter in text it returns (text, ""). With exactly one it
// returns the two sides. Otherwise it grows the left side one piece at a time
// and stops at the first piece that does not bring the left side closer to
// halfway; the cut is placed before that piece. The result is the first local
// minimum, which can leave the left side empty when the first piece alone
// already overshoots.
func HalveByDelimiter(tok tokenizer.Tokenizer, text, delim string) (left, right string) {
	parts := strings.Split(text, delim)
	switch len(parts) {
	case 1:
		return text, ""
	case 2:
		return parts[0], parts[1]
	}
	halfway := tok.Count(text) / 2
	best := halfway
	i := 0
	for ; i < len(parts); i++ {
		diff := halfway - tok.Count(strings.Join(parts[:i+1], delim))
		if diff < 0 {
			diff = -diff
		}
		if diff >= best {
			break
		}
		best = diff
	}
	if i == len(parts) {
		i = len(parts) - 1
	}
	return strings.Join(parts[:i], delim), strings.Join(parts[i:], delim)
}
