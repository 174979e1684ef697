// Package llmprovider wraps chat-completion backends behind a single
// Provider interface: plain text in, plain text out. The agent graph and
// speculative path parse tool calls out of the returned text themselves,
// so no native tool-calling machinery is exposed here.
package llmprovider

import "context"

// Params controls a single generation call.
type Params struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Provider is the minimal generation contract every LLM backend
// implements.
type Provider interface {
	Generate(ctx context.Context, messages []Message, params Params) (string, error)
}

// Role mirrors the chat roles a provider accepts.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the prompt.
type Message struct {
	Role    Role
	Content string
}
