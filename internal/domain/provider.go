package domain

import "context"

// LLMProvider is the interface for any upstream chat-completion backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "deepseek").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming response.
// Reasoning carries chain-of-thought text; Content carries answer text.
// Err is set on the final delta when the stream terminated abnormally;
// it is never serialized to the wire.
type StreamDelta struct {
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
	Err       error  `json:"-"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
