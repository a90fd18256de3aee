// Package llm defines the chat completion contract the script pipeline depends on.
//
// A Completer receives a system prompt and a single user message and returns
// the fully assembled reply text. Implementations may stream internally; the
// caller only ever sees the final text.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the backend produced no text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Credentials selects the backend account and model for one job.
type Credentials struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Completer produces a complete reply for a system prompt and user message.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Factory builds a Completer for a job's credentials.
type Factory func(ctx context.Context, creds Credentials) (Completer, error)
