// Package llm provides the abstraction the LLM analyst talks to.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []llm.Message{
//	    llm.SystemMessage("You summarize journal entries."),
//	    llm.UserMessage("..."),
//	})
package llm

import "context"

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// SystemMessage returns a system turn.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage returns a user turn.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// Provider defines the interface for LLM integrations.
//
// Providers only handle API communication; prompt construction and response
// parsing belong to the caller.
type Provider interface {
	// Complete sends messages and returns the assistant's full reply.
	Complete(ctx context.Context, messages []Message) (*Message, error)

	// GetModel returns the model name being used.
	GetModel() string

	// GetBaseURL returns the base URL being used for API requests.
	GetBaseURL() string
}
