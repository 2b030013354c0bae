package completion

import (
	"context"
	"sync"
)

// Static answers every prompt with a fixed reply and remembers the last
// prompts it saw. It stands in for a real model in tests and offline runs.
type Static struct {
	Reply string
	Err   error

	mu         sync.Mutex
	lastSystem string
	lastUser   string
	calls      int
}

// NewStatic returns a completer that always answers reply.
func NewStatic(reply string) *Static {
	return &Static{Reply: reply}
}

// Complete records the prompts and returns Reply, or Err when set.
func (s *Static) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSystem, s.lastUser = systemPrompt, userPrompt
	s.calls++
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// Model returns "static".
func (s *Static) Model() string { return "static" }

// LastPrompts returns the prompts of the most recent call.
func (s *Static) LastPrompts() (system, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSystem, s.lastUser
}

// Calls returns how many times Complete was called.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
