package indexer

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n\n")

// Preprocess normalizes extracted text before chunking. Line endings become
// "\n", form feeds become paragraph breaks, trailing blanks on each line are
// removed, and the text is trimmed. Blank-line runs are kept because the
// chunker splits on them.
func Preprocess(text string) string {
	text = lineEndings.Replace(text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
