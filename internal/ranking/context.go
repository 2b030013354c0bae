package ranking

import (
	"strings"

	"github.com/hyperjump/compendium/internal/tokenizer"
)

// AssembleContext builds the user prompt: preamble, then each ranked text
// wrapped in triple quotes, then the question. Texts are added in rank order
// until the next one would push the prompt, question included, past budget
// tokens; that text and all after it are left out. The question is always
// appended, even if the preamble alone exceeds the budget.
func AssembleContext(tok tokenizer.Tokenizer, preamble, query string, ranked []string, budget int) string {
	question := "\n\nQuestion: " + query
	var b strings.Builder
	b.WriteString(preamble)
	for _, text := range ranked {
		block := "\"\"\"\n" + text + "\n\"\"\""
		if tok.Count(b.String()+block+question) > budget {
			break
		}
		b.WriteString(block)
	}
	b.WriteString(question)
	return b.String()
}
