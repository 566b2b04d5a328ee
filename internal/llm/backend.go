package llm

import (
	"context"
)

// Request is one logical generation request. System and Prompt are combined
// by the backend in whatever shape its API expects.
type Request struct {
	System          string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int
}

// Usage reports token consumption for one completed call. Backends that
// cannot measure usage return zero values.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Backend is the boundary to the generative-text service. One call equals
// one network attempt keyed by credential and model; implementations must
// classify failures as *RateLimitError, *ModelUnavailableError, or plain
// errors so the executor can route retries. Context cancellation bounds
// the attempt.
type Backend interface {
	// Generate performs a single generation attempt and returns the text.
	Generate(ctx context.Context, apiKey, model string, req *Request) (string, Usage, error)

	// Name identifies the provider for logging and token accounting.
	Name() string
}
