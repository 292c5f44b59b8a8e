package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/action"
)

// AgentOutputGenerator asks the powerful tier for a JSON decision and decodes
// it into an AgentOutput.
type AgentOutputGenerator struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// NewAgentOutputGenerator wraps an LLM client for task-agent decisions.
func NewAgentOutputGenerator(logger *zap.Logger, client schemas.LLMClient) *AgentOutputGenerator {
	return &AgentOutputGenerator{
		client: client,
		logger: logger.Named("agent_output"),
	}
}

// GenerateAgentOutput returns an error both when the model cannot be reached
// and when its reply does not decode; callers treat the two alike.
func (g *AgentOutputGenerator) GenerateAgentOutput(ctx context.Context, messages []schemas.Message) (*action.AgentOutput, error) {
	text, err := g.client.Generate(ctx, schemas.GenerationRequest{
		Messages: messages,
		Tier:     schemas.TierPowerful,
		Options:  schemas.GenerationOptions{ForceJSONFormat: true},
	})
	if err != nil {
		return nil, err
	}

	out, err := action.ParseAgentOutput(text)
	if err != nil {
		g.logger.Debug("Discarding undecodable model output", zap.Int("length", len(text)), zap.Error(err))
		return nil, fmt.Errorf("decode agent output: %w", err)
	}
	return out, nil
}
