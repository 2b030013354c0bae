package models

// RankedChunk is a chunk with its similarity to the query.
type RankedChunk struct {
	ChunkID int     `json:"chunk_id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// Answer is the response to a Query.
type Answer struct {
	DocID  string `json:"doc_id"`
	Answer string `json:"answer"`
	// Fallback is set when the model signalled it could not answer from the context
	// and Answer holds the configured fallback message.
	Fallback bool  `json:"fallback"`
	TookMs   int64 `json:"took_ms"`

	// Populated only on debug requests.
	Prompt string        `json:"prompt,omitempty"`
	Ranked []RankedChunk `json:"ranked,omitempty"`
}
