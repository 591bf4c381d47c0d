package llmengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Responder computes a Mock's response for a given prompt. It runs under
// the Mock's lock, so it may mutate shared test state safely.
type Responder func(prompt string, opts DecodingOptions) Result

// Mock is a deterministic Engine used by broker tests and by the example
// client harness in place of a real model binary. It initializes lazily
// via sync.Once, mirroring the double-checked singleton the broker's
// model loader follows for the real engine.
type Mock struct {
	contextWindow int
	respond       Responder

	once  sync.Once
	calls []string
	mu    sync.Mutex
}

// NewMock builds a Mock with the given context window and response
// function. A nil Responder falls back to EchoResponder.
func NewMock(contextWindow int, respond Responder) *Mock {
	if respond == nil {
		respond = EchoResponder
	}
	return &Mock{contextWindow: contextWindow, respond: respond}
}

// EchoResponder is the default Responder: it wraps the prompt's first 40
// runes into a small well-formed artifact, stopping on FinishStop.
func EchoResponder(prompt string, _ DecodingOptions) Result {
	snippet := []rune(prompt)
	if len(snippet) > 40 {
		snippet = snippet[:40]
	}
	text := fmt.Sprintf(`{"summary":%q,"keyword":"echo","paragraphs":[]}`, string(snippet))
	return Result{Text: text, FinishReason: FinishStop}
}

// TruncatingResponder always reports FinishLength on the first call for
// any prompt containing marker, then FinishStop on a retry with a doubled
// max_tokens budget. It exists to exercise the worker's length-retry path
// in tests without a real model.
func TruncatingResponder(marker, shortText, longText string) Responder {
	seen := make(map[string]bool)
	var mu sync.Mutex
	return func(prompt string, opts DecodingOptions) Result {
		if !strings.Contains(prompt, marker) {
			return Result{Text: longText, FinishReason: FinishStop}
		}
		mu.Lock()
		defer mu.Unlock()
		if !seen[prompt] {
			seen[prompt] = true
			return Result{Text: shortText, FinishReason: FinishLength}
		}
		return Result{Text: longText, FinishReason: FinishStop}
	}
}

func (m *Mock) init() {
	m.once.Do(func() {
		if m.contextWindow == 0 {
			m.contextWindow = 4096
		}
	})
}

// Complete implements Engine.
func (m *Mock) Complete(ctx context.Context, prompt string, opts DecodingOptions) (Result, error) {
	m.init()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prompt)

	return m.respond(prompt, opts), nil
}

// ContextWindow implements Engine.
func (m *Mock) ContextWindow() int {
	m.init()
	return m.contextWindow
}

// CallCount returns how many times Complete has been invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastPrompt returns the most recent prompt passed to Complete, or "" if
// Complete has never been called.
func (m *Mock) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}
