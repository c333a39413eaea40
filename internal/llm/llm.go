// Package llm provides interfaces and implementations for Large Language Model clients.
package llm

import (
	"context"
)

// GenerateOptions configures the LLM generation request.
type GenerateOptions struct {
	// Model specifies the LLM model to use. Empty means the client default.
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int

	// ThinkingBudget bounds the model's internal reasoning tokens.
	// Zero disables reasoning entirely; negative values leave the
	// model default in place.
	ThinkingBudget int
}

// Result holds the outcome of a generation call.
type Result struct {
	// Text is the generated answer, possibly empty.
	Text string

	// FinishReason is the raw finish reason reported by the model.
	FinishReason string

	// Truncated is true when the model stopped because it hit the
	// output token limit rather than finishing naturally.
	Truncated bool
}

// LLM defines the interface for Large Language Model clients.
type LLM interface {
	// Generate sends a prompt to the LLM and returns the complete response.
	// It blocks until the full response is received or an error occurs.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (Result, error)
}
