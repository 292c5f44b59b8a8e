package voice

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/accessibility"
)

// MockLLMClient is a mock implementation of the LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error { return nil }

// fakeClock is a manual scheduler for debounce timing.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Duration
	timers    []*fakeTimer
	scheduled chan struct{}
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{scheduled: make(chan struct{}, 64)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	c.scheduled <- struct{}{}
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves time forward and runs every timer that came due, in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// waitScheduled blocks until the next timer is armed.
func (c *fakeClock) waitScheduled(t *testing.T) {
	t.Helper()
	select {
	case <-c.scheduled:
	case <-time.After(2 * time.Second):
		t.Fatal("no debounce timer was scheduled")
	}
}

// fakeTranscriber hands out one stream per Start.
type fakeTranscriber struct {
	mu      sync.Mutex
	stream  chan string
	starts  int
	stops   int
	started chan struct{}
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{started: make(chan struct{}, 64)}
}

func (f *fakeTranscriber) Start(context.Context) (<-chan string, error) {
	f.mu.Lock()
	f.stream = make(chan string)
	f.starts++
	stream := f.stream
	f.mu.Unlock()
	f.started <- struct{}{}
	return stream, nil
}

func (f *fakeTranscriber) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeTranscriber) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// waitStarted blocks until the supervisor begins listening again.
func (f *fakeTranscriber) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("transcription was not started")
	}
}

// Say delivers one partial transcript to the active stream.
func (f *fakeTranscriber) Say(t *testing.T, text string) {
	t.Helper()
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	require.NotNil(t, stream)
	select {
	case stream <- text:
	case <-time.After(2 * time.Second):
		t.Fatalf("transcript %q was not consumed", text)
	}
}

// End closes the active stream as if input ran out.
func (f *fakeTranscriber) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.stream)
	f.stream = nil
}

// fakeSpeaker records utterances.
type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	stops  int
	said   chan string
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{said: make(chan string, 64)}
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	s.said <- text
	return ctx.Err()
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// waitSaid returns the next utterance.
func (s *fakeSpeaker) waitSaid(t *testing.T) string {
	t.Helper()
	select {
	case text := <-s.said:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("nothing was spoken")
		return ""
	}
}

// fakeAgent stands in for the task loop.
type fakeAgent struct {
	mu       sync.Mutex
	busy     bool
	task     string
	started  []string
	stops    int
	startErr error
}

func (a *fakeAgent) Start(_ context.Context, task string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return a.startErr
	}
	a.started = append(a.started, task)
	a.busy, a.task = true, task
	return nil
}

func (a *fakeAgent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	a.busy = false
}

func (a *fakeAgent) Wait() {}

func (a *fakeAgent) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

func (a *fakeAgent) CurrentTask() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

func (a *fakeAgent) Started() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.started...)
}

// fakeCaptions records caption updates.
type fakeCaptions struct {
	mu    sync.Mutex
	shown []string
	hides int
}

func (c *fakeCaptions) ShowCaption(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, text)
}

func (c *fakeCaptions) HideCaption() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hides++
}

func (c *fakeCaptions) Shown() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.shown...)
}

// screenFunc adapts a function to Perceiver.
type screenFunc func(ctx context.Context) (*accessibility.ScreenAnalysis, error)

func (f screenFunc) Analyze(ctx context.Context) (*accessibility.ScreenAnalysis, error) {
	return f(ctx)
}

type trust bool

func (t trust) Trusted(context.Context) bool { return bool(t) }
