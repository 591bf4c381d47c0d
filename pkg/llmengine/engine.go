// Package llmengine defines the minimal capability contract the broker
// needs from a language-model inference engine: given a prompt and a set
// of decoding options, produce a completion and a reason generation
// stopped. Model loading, thread/affinity tuning, GPU layer counts, and
// environment plumbing are all external to this package by design; see
// Mock for the implementation used in tests and the example client
// harness.
package llmengine

import "context"

// FinishReason is the engine's tag on why generation stopped.
type FinishReason string

const (
	// FinishStop means generation ended naturally (end-of-sequence or a
	// stop token).
	FinishStop FinishReason = "stop"
	// FinishLength means generation was cut off at max_tokens.
	FinishLength FinishReason = "length"
)

// DecodingOptions configures one completion call. The broker's worker
// pool always supplies the same profile for the primary summarization
// call and the re-query call: Temperature 0.3, TopP 0.8, TopK 20,
// MinP 0.1, RepeatPenalty 1.05, Echo false.
type DecodingOptions struct {
	Temperature   float64
	TopP          float64
	TopK          int
	MinP          float64
	RepeatPenalty float64
	Echo          bool
	MaxTokens     int
}

// Result is one completion produced by the engine.
type Result struct {
	Text         string
	FinishReason FinishReason
}

// Engine is the entire surface the broker depends on. A concrete
// implementation wraps a real model; Mock is a deterministic
// implementation for tests.
type Engine interface {
	// Complete runs one inference call. It must be safe to call from
	// multiple goroutines only if the implementation documents that;
	// the default worker pool configuration (one worker) never needs
	// concurrent calls, and a multi-worker configuration always
	// serializes calls itself.
	Complete(ctx context.Context, prompt string, opts DecodingOptions) (Result, error)

	// ContextWindow reports the model's context size in tokens, used by
	// the worker to compute a dynamic max_tokens budget.
	ContextWindow() int
}
