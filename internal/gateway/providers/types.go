package providers

import (
	"context"
	"errors"
	"fmt"
)

// Prompt is one upstream request: a single user turn plus an optional
// system instruction kept apart from the user content.
type Prompt struct {
	Model     string
	System    string
	User      string
	MaxTokens int
}

// Usage represents token usage as reported by the provider
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the result of a non-streaming call
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// StreamReader yields text fragments in provider order. Recv returns io.EOF
// once the stream completed normally.
type StreamReader interface {
	Recv() (string, error)
	// Usage is meaningful once Recv has returned io.EOF.
	Usage() Usage
	Close() error
}

// Provider is the capability every upstream client implements
type Provider interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
	Stream(ctx context.Context, p Prompt) (StreamReader, error)
	Name() string
}

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("upstream response contained no text")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}
