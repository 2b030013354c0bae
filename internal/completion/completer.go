// Package completion asks a chat model to answer a prompt.
package completion

import (
	"context"
	"errors"
)

// Completer returns the model's answer to userPrompt under systemPrompt.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// ErrNoChoices is returned when the provider answers without any choice.
var ErrNoChoices = errors.New("completion returned no choices")
