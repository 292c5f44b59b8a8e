// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// NewClients builds the tiered router: the agent model serves the powerful
// tier and the voice model serves the fast tier. Both share one genai client
// and one request limiter.
func NewClients(ctx context.Context, logger *zap.Logger, cfg config.LLMConfig, apiKey string, opts ...ClientOption) (*LLMRouter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set %s)", cfg.APIKeyEnv)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	shared := append([]ClientOption{WithLimiter(NewLimiter(cfg.RequestsPerMinute))}, opts...)

	powerful, err := NewGeminiClient(logger, client, cfg.Agent, shared...)
	if err != nil {
		return nil, fmt.Errorf("agent model: %w", err)
	}
	fast, err := NewGeminiClient(logger, client, cfg.Voice, shared...)
	if err != nil {
		return nil, fmt.Errorf("voice model: %w", err)
	}
	return NewLLMRouter(logger, fast, powerful)
}
