// Package tokenizer measures and truncates text in model tokens.
package tokenizer

// Tokenizer counts tokens the way a particular model does.
// Implementations must be safe for concurrent use.
type Tokenizer interface {
	// Count returns the number of tokens in text.
	Count(text string) int
	// Truncate returns the longest prefix of text that fits in max tokens.
	Truncate(text string, max int) string
	// Model is the model whose vocabulary is used.
	Model() string
}
