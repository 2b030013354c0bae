package search

// Snippet shortens text to at most maxRunes runes followed by "...".
// maxRunes <= 0 returns text unchanged.
func Snippet(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i] + "..."
		}
		n++
	}
	return text
}
