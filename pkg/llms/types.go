// Package llms provides the generation port. Two LLM calls happen per
// dialog turn: one analysis call (structured JSON out) and one tutor
// response call (prose out). Both go through the same Provider.
package llms

import (
	"context"
	"fmt"
	"time"
)

// GenerateOptions are per-call overrides. Zero values defer to the
// provider's configuration.
type GenerateOptions struct {
	// System is the system prompt.
	System string

	// Temperature overrides the configured temperature.
	Temperature *float64

	// MaxTokens overrides the configured response length limit.
	MaxTokens int
}

// Result is one completed generation.
type Result struct {
	// Text is the generated response. When Degraded, it is the configured
	// fallback text, not model output.
	Text string

	// Model that produced the response.
	Model string

	// PromptTokens counts prompt tokens, as reported by the backend.
	PromptTokens int

	// OutputTokens counts generated tokens, as reported by the backend.
	OutputTokens int

	// Elapsed is wall time for the call.
	Elapsed time.Duration

	// Degraded marks a fallback response issued after the backend failed.
	Degraded bool

	// DegradedReason describes the failure that triggered the fallback.
	DegradedReason string
}

// StreamChunk is one fragment of a streaming generation.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// Provider is the single-shot generation port.
type Provider interface {
	// Generate produces a complete response for prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Result, error)

	// ModelName returns the configured model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// StreamingProvider is implemented by backends that can stream tokens.
type StreamingProvider interface {
	Provider

	// GenerateStream emits response fragments on the returned channel. The
	// channel is closed after the final chunk (Done=true) or an error chunk.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}

// ModelMissingError reports a model name the backend does not serve. It is
// a configuration error, never retried.
type ModelMissingError struct {
	Model string
}

func (e *ModelMissingError) Error() string {
	return fmt.Sprintf("model %q is not available on the inference server (pull it first)", e.Model)
}
