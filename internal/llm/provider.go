// Package llm abstracts the chat-completion provider used for context
// classification and on-demand response generation.
package llm

import "context"

// Role identifies the author of a chat message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider produces a completion for a chat exchange. Implementations
// must honor context cancellation so a hung upstream cannot wedge the
// caller.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
