// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ErrRetriesExhausted is returned once every attempt allowed by max_retries
// has failed. The last attempt's error is wrapped alongside it.
var ErrRetriesExhausted = errors.New("llm retries exhausted")

// errEmptyResponse marks a response with no text payload. It is retried like
// a transport failure.
var errEmptyResponse = errors.New("model returned an empty response")

// contentGenerator is the slice of the genai models service the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// GeminiClient implements schemas.LLMClient on top of the Gemini API.
type GeminiClient struct {
	models  contentGenerator
	logger  *zap.Logger
	config  config.LLMModelConfig
	limiter *rate.Limiter
	sleep   SleepFunc
}

// ClientOption customizes a GeminiClient.
type ClientOption func(*GeminiClient)

// WithSleep replaces the backoff sleep.
func WithSleep(sleep SleepFunc) ClientOption {
	return func(c *GeminiClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLimiter replaces the request pacing limiter.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *GeminiClient) {
		if l != nil {
			c.limiter = l
		}
	}
}

// NewGeminiClient wraps an existing genai client for one model configuration.
func NewGeminiClient(logger *zap.Logger, client *genai.Client, cfg config.LLMModelConfig, opts ...ClientOption) (*GeminiClient, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return newGeminiClient(logger, client.Models, cfg, opts...)
}

func newGeminiClient(logger *zap.Logger, models contentGenerator, cfg config.LLMModelConfig, opts ...ClientOption) (*GeminiClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model configuration: %w", err)
	}
	c := &GeminiClient{
		models:  models,
		logger:  logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
		config:  cfg,
		limiter: rate.NewLimiter(rate.Inf, 1),
		sleep:   contextSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewLimiter converts a requests-per-minute budget into a limiter. Zero or
// negative budgets are unlimited.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// Generate sends the request, retrying failed attempts with exponential
// backoff. At most max_retries attempts are made.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents, genConfig := c.buildRequest(req)

	attempts := c.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := c.attempt(ctx, contents, genConfig)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		c.logger.Warn("LLM request failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// backoff returns the delay after the given failed attempt:
// min(initial * 2^(attempt-1), max).
func (c *GeminiClient) backoff(attempt int) time.Duration {
	d := c.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.config.MaxBackoff > 0 && d >= c.config.MaxBackoff {
			return c.config.MaxBackoff
		}
	}
	if c.config.MaxBackoff > 0 && d > c.config.MaxBackoff {
		return c.config.MaxBackoff
	}
	return d
}

func (c *GeminiClient) attempt(ctx context.Context, contents []*genai.Content, genConfig *genai.GenerateContentConfig) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	callCtx := ctx
	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(callCtx, c.config.Model, contents, genConfig)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errEmptyResponse
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if usage := resp.UsageMetadata; usage != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", usage.PromptTokenCount),
			zap.Int32("completion_tokens", usage.CandidatesTokenCount),
			zap.Int32("total_tokens", usage.TotalTokenCount),
		)
	}
	c.logger.Debug("LLM generation complete", fields...)
	return text, nil
}

func (c *GeminiClient) buildRequest(req schemas.GenerationRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.config.Temperature),
	}
	if req.Options.Temperature != nil {
		genConfig.Temperature = genai.Ptr(*req.Options.Temperature)
	}
	if c.config.MaxOutputTokens > 0 {
		genConfig.MaxOutputTokens = int32(c.config.MaxOutputTokens)
	}
	if req.Options.ForceJSONFormat {
		genConfig.ResponseMIMEType = "application/json"
	}
	if system := req.SystemPrompt(); system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	conversation := req.Conversation()
	contents := make([]*genai.Content, 0, len(conversation))
	for _, m := range conversation {
		role := genai.Role(genai.RoleUser)
		if m.Role == schemas.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	return contents, genConfig
}

// Close is a no-op; the shared genai client holds no closable resources.
func (c *GeminiClient) Close() error {
	return nil
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
