package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
// Prefix marks a partial assistant message used to seed continuation of an
// in-progress turn rather than a completed one; it is only meaningful on the
// trailing assistant message of an upstream request.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Prefix    bool      `json:"prefix,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChatRequest is sent to an upstream LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatResponse is returned from an upstream LLM provider in non-streaming mode.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Reasoning string    `json:"reasoning,omitempty"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ValidRole reports whether s is a recognized conversation role.
func ValidRole(s string) bool {
	switch s {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
