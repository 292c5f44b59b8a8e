package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// -- Decider Mock --

// MockDecider mocks the Decider interface.
type MockDecider struct {
	mock.Mock
}

func (m *MockDecider) GenerateAgentOutput(ctx context.Context, messages []schemas.Message) (*action.AgentOutput, error) {
	args := m.Called(ctx, messages)
	out, _ := args.Get(0).(*action.AgentOutput)
	return out, args.Error(1)
}

// -- Collaborator Mocks --

// MockAppLauncher mocks the AppLauncher interface.
type MockAppLauncher struct {
	mock.Mock
}

func (m *MockAppLauncher) Launch(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// MockSpeaker mocks the Speaker interface.
type MockSpeaker struct {
	mock.Mock
}

func (m *MockSpeaker) Speak(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockSpeaker) Stop() { m.Called() }

// MockAsker mocks the Asker interface.
type MockAsker struct {
	mock.Mock
}

func (m *MockAsker) Ask(ctx context.Context, question string) (string, error) {
	args := m.Called(ctx, question)
	return args.String(0), args.Error(1)
}

// MockJournal mocks the Journal interface.
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) BeginRun(ctx context.Context, id, task string, at time.Time) error {
	return m.Called(ctx, id, task, at).Error(0)
}

func (m *MockJournal) RecordStep(ctx context.Context, step store.Step) error {
	return m.Called(ctx, step).Error(0)
}

func (m *MockJournal) FinishRun(ctx context.Context, id string, done, success bool, reason string, at time.Time) error {
	return m.Called(ctx, id, done, success, reason, at).Error(0)
}

// -- Fakes --

// recordingInput captures dispatched input instead of touching the OS.
type recordingInput struct {
	mu     sync.Mutex
	clicks []accessibility.Point
	typed  []string
	keys   []string
	scroll []int
	err    error
	panics bool
}

func (r *recordingInput) Click(_ context.Context, p accessibility.Point) error {
	if r.panics {
		panic("synthetic input failure")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, p)
	return r.err
}

func (r *recordingInput) Type(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typed = append(r.typed, text)
	return r.err
}

func (r *recordingInput) PressKey(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "nosuchkey" {
		return false, nil
	}
	r.keys = append(r.keys, name)
	return true, r.err
}

func (r *recordingInput) Scroll(_ context.Context, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scroll = append(r.scroll, amount)
	return r.err
}

// recordingOverlay implements Overlay.
type recordingOverlay struct {
	mu      sync.Mutex
	updates int
	clears  int
	todo    string
}

func (o *recordingOverlay) Update([]accessibility.DetectedElement) {
	o.mu.Lock()
	o.updates++
	o.mu.Unlock()
}

func (o *recordingOverlay) Clear() {
	o.mu.Lock()
	o.clears++
	o.mu.Unlock()
}

func (o *recordingOverlay) SetTodo(content string) {
	o.mu.Lock()
	o.todo = content
	o.mu.Unlock()
}

func (o *recordingOverlay) Todo() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.todo
}

// recordingSleep records requested durations without waiting.
type recordingSleep struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleep) Calls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

type trust bool

func (t trust) Trusted(context.Context) bool { return bool(t) }
