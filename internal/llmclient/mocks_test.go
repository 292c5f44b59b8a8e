package llmclient

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"google.golang.org/genai"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// MockLLMClient is a mock implementation of the LLMClient interface for testing.
type MockLLMClient struct {
	mock.Mock
	Name string
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// generateCall captures one GenerateContent invocation.
type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	deadline bool
}

// fakeModels replays a scripted list of responses. Once the script runs out
// the last entry repeats.
type fakeModels struct {
	mu     sync.Mutex
	script []fakeReply
	calls  []generateCall
}

type fakeReply struct {
	text string
	err  error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	f.calls = append(f.calls, generateCall{model: model, contents: contents, config: cfg, deadline: hasDeadline})

	reply := f.script[len(f.script)-1]
	if n := len(f.calls); n <= len(f.script) {
		reply = f.script[n-1]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(reply.text, genai.RoleModel)}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount: 10, CandidatesTokenCount: 5, TotalTokenCount: 15,
		},
	}, nil
}

func (f *fakeModels) Calls() []generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generateCall(nil), f.calls...)
}

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) Calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

// getValidModelConfig returns a valid LLMModelConfig for testing purposes.
func getValidModelConfig() config.LLMModelConfig {
	return config.LLMModelConfig{
		Model:           "test-model",
		APITimeout:      time.Minute,
		MaxRetries:      3,
		InitialBackoff:  time.Second,
		MaxBackoff:      16 * time.Second,
		Temperature:     0.2,
		MaxOutputTokens: 2048,
	}
}
