package tokenizer

import "unicode"

// WordTokenizer treats every whitespace-separated word as one token.
// It is deterministic and needs no vocabulary, which makes it useful in tests
// and as an offline fallback.
type WordTokenizer struct{}

// Count returns the number of words in text.
func (WordTokenizer) Count(text string) int {
	return len(SplitWords(text))
}

// Truncate returns text up to and including its max-th word, preserving the
// original spacing between the kept words.
func (WordTokenizer) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord && n == max {
				return text[:i]
			}
			inWord = false
			continue
		}
		if !inWord {
			inWord = true
			n++
		}
	}
	return text
}

// Model returns "words".
func (WordTokenizer) Model() string { return "words" }

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	var words []string
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, text[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}
