// Package llm defines the provider-agnostic language-model interface used by
// the pipeline, with a concrete OpenAI implementation and deterministic mocks
// for testing. Two logical models are routed by track: the fast model serves
// FAST generation and L3 query rewriting, the quality model serves the
// Analyst, Architect, Generator and Guardian.
package llm

import (
	"context"
	"errors"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// Client defines the interface for interacting with a language model.
// Implementations must be stateless and thread-safe.
type Client interface {
	// Generate produces text from a prompt using the configured model.
	Generate(ctx context.Context, prompt string) (string, error)

	// Model returns the model identifier behind this client.
	Model() string
}

// Router holds the two logical models the pipeline routes between.
type Router struct {
	// Fast is the low-latency model (FAST drafts, L3 normalization).
	Fast Client

	// Quality is the heavyweight model (plans, specs, QUALITY drafts).
	Quality Client
}

// NewRouter wires a router from two clients.
func NewRouter(fast, quality Client) (*Router, error) {
	if fast == nil || quality == nil {
		return nil, errors.New("router requires both fast and quality clients")
	}
	return &Router{Fast: fast, Quality: quality}, nil
}
