package indexer

import "testing"

func BenchmarkChunker_Chunk(b *testing.B) {
	c := newTestChunker(200, 5)
	text := paragraphs(50, 40)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Chunk(text)
	}
}
