package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var loaderOnce sync.Once

// Tiktoken is a BPE tokenizer matching OpenAI models. Vocabularies are
// embedded in the binary, so no network access is needed.
type Tiktoken struct {
	model string
	enc   *tiktoken.Tiktoken
}

// NewTiktoken returns the tokenizer for model (e.g. "gpt-3.5-turbo").
func NewTiktoken(model string) (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer for %s: %w", model, err)
	}
	return &Tiktoken{model: model, enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.EncodeOrdinary(text))
}

// Truncate keeps the first max tokens of text.
func (t *Tiktoken) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	tokens := t.enc.EncodeOrdinary(text)
	if len(tokens) <= max {
		return text
	}
	// A cut inside a multi-byte rune leaves a partial sequence at the end.
	return strings.ToValidUTF8(t.enc.Decode(tokens[:max]), "")
}

// Model returns the model name.
func (t *Tiktoken) Model() string { return t.model }
