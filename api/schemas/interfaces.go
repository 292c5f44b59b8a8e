package schemas

import (
	"context"
	"strings"
)

// -- LLM Interfaces --

// Role tags a message in a model conversation.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// Message is one role-tagged turn sent to a language model.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// NewMessage is a small constructor used by prompt builders.
func NewMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Conversational turns with a short timeout.
	TierPowerful ModelTier = "powerful" // Task-agent decisions.
)

// GenerationOptions controls sampling and output format for a single request.
type GenerationOptions struct {
	Temperature     *float32 `json:"temperature,omitempty"` // nil keeps the client default.
	ForceJSONFormat bool     `json:"force_json_format"`     // Ask the model for application/json output.
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	Messages []Message         `json:"messages"`
	Tier     ModelTier         `json:"tier"`
	Options  GenerationOptions `json:"options"`
}

// SystemPrompt joins all system-role messages.
func (r GenerationRequest) SystemPrompt() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Conversation returns the non-system messages in order.
func (r GenerationRequest) Conversation() []Message {
	out := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
