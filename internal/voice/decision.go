// internal/voice/decision.go
package voice

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecisionType classifies one user utterance.
type DecisionType string

const (
	DecisionTask     DecisionType = "Task"
	DecisionReply    DecisionType = "Reply"
	DecisionKillTask DecisionType = "KillTask"
)

const (
	EndContinue = "Continue"
	EndFinished = "Finished"
)

const fallbackReply = "I'm not sure how to respond to that."

// Decision is the conversational model's verdict for one utterance.
type Decision struct {
	Type        DecisionType `json:"Type"`
	Reply       string       `json:"Reply"`
	Instruction string       `json:"Instruction"`
	ShouldEnd   string       `json:"Should End"`
}

// SafeReply never returns an empty utterance.
func (d Decision) SafeReply() string {
	if strings.TrimSpace(d.Reply) == "" {
		return fallbackReply
	}
	return d.Reply
}

// Finished reports whether the model ended the conversation.
func (d Decision) Finished() bool {
	return strings.EqualFold(strings.TrimSpace(d.ShouldEnd), EndFinished)
}

// ParseDecision decodes the model's reply. Markdown code fences around the
// object are tolerated; unknown Type values decode and are treated as Reply.
func ParseDecision(text string) (Decision, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var d Decision
	if err := json.UnmarshalFromString(body, &d); err != nil {
		return Decision{}, fmt.Errorf("decode voice decision: %w", err)
	}
	if d.Type == "" {
		return Decision{}, fmt.Errorf("decode voice decision: missing Type")
	}
	return d, nil
}
