// internal/voice/supervisor_test.go
package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

const debounce = 1500 * time.Millisecond

type supervisorFixture struct {
	sup         *Supervisor
	llm         *MockLLMClient
	clock       *fakeClock
	transcriber *fakeTranscriber
	speaker     *fakeSpeaker
	agent       *fakeAgent
	captions    *fakeCaptions
}

func newSupervisorFixture(t *testing.T, logger *zap.Logger, mutate func(*Deps)) *supervisorFixture {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	f := &supervisorFixture{
		llm:         new(MockLLMClient),
		clock:       newFakeClock(),
		transcriber: newFakeTranscriber(),
		speaker:     newFakeSpeaker(),
		agent:       &fakeAgent{},
		captions:    &fakeCaptions{},
	}
	deps := Deps{
		LLM:         f.llm,
		Transcriber: f.transcriber,
		Speaker:     f.speaker,
		Agent:       f.agent,
		Captioner:   f.captions,
		Perceiver: screenFunc(func(context.Context) (*accessibility.ScreenAnalysis, error) {
			return &accessibility.ScreenAnalysis{AppName: "Finder", UIRepresentation: "*[1]<Button>Downloads</Button>"}, nil
		}),
	}
	if mutate != nil {
		mutate(&deps)
	}
	cfg := config.VoiceConfig{SilenceDebounce: debounce, AssistantName: "Deskpilot"}
	f.sup = NewSupervisor(logger, cfg, deps,
		WithAfterFunc(f.clock.AfterFunc),
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC) }),
	)
	t.Cleanup(f.sup.StopSession)
	return f
}

// start begins a session and waits for the first transcription.
func (f *supervisorFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sup.StartSession(context.Background()))
	f.transcriber.waitStarted(t)
}

// utter speaks one phrase and lets the silence window elapse.
func (f *supervisorFixture) utter(t *testing.T, text string) {
	t.Helper()
	f.transcriber.Say(t, text)
	f.clock.waitScheduled(t)
	f.clock.Advance(debounce)
}

func (f *supervisorFixture) decide(reply string) *mock.Call {
	return f.llm.On("Generate", mock.Anything, mock.Anything).Return(reply, nil).Once()
}

func lastUser(req schemas.GenerationRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == schemas.RoleUser {
			return req.Messages[i].Text
		}
	}
	return ""
}

func TestSupervisor_SilenceDebounceCommitsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newSupervisorFixture(t, zap.New(core), nil)

	committed := make(chan string, 4)
	f.llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"Type":"Reply","Reply":"Which light?","Instruction":"","Should End":"Continue"}`, nil).
		Run(func(args mock.Arguments) { committed <- lastUser(args.Get(1).(schemas.GenerationRequest)) }).
		Once()

	f.start(t)

	f.transcriber.Say(t, "turn")
	f.clock.waitScheduled(t)
	f.clock.Advance(400 * time.Millisecond)
	f.transcriber.Say(t, "turn off")
	f.clock.waitScheduled(t)

	// 1.4s after the last update: still inside the silence window.
	f.clock.Advance(1400 * time.Millisecond)
	select {
	case text := <-committed:
		t.Fatalf("committed %q before the silence window closed", text)
	case <-time.After(50 * time.Millisecond):
	}

	// t = 1.9s.
	f.clock.Advance(100 * time.Millisecond)
	select {
	case text := <-committed:
		assert.Equal(t, "turn off", text)
	case <-time.After(2 * time.Second):
		t.Fatal("utterance was never committed")
	}
	assert.Equal(t, 1900*time.Millisecond, f.clock.Now())

	assert.Equal(t, "Which light?", f.speaker.waitSaid(t))
	f.transcriber.waitStarted(t)
	f.clock.Advance(10 * time.Second)

	f.llm.AssertNumberOfCalls(t, "Generate", 1)
	assert.Equal(t, 1, logs.FilterMessage("Silence detected. Committing").Len())
	assert.Equal(t, []string{"turn", "turn off"}, f.captions.Shown())
	assert.Equal(t, StateListening, f.sup.State())
}

func TestSupervisor_SystemTurnIsRenderedEachTurn(t *testing.T) {
	screens := []string{"*[1]<Button>Downloads</Button>", "*[1]<TextArea>Draft</TextArea>"}
	calls := 0
	f := newSupervisorFixture(t, nil, func(deps *Deps) {
		deps.Perceiver = screenFunc(func(context.Context) (*accessibility.ScreenAnalysis, error) {
			ui := screens[calls%len(screens)]
			calls++
			return &accessibility.ScreenAnalysis{UIRepresentation: ui}, nil
		})
	})

	var requests []schemas.GenerationRequest
	f.llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"Type":"Reply","Reply":"Hi!","Instruction":"","Should End":"Continue"}`, nil).
		Run(func(args mock.Arguments) { requests = append(requests, args.Get(1).(schemas.GenerationRequest)) }).
		Twice()

	f.start(t)
	f.utter(t, "hello")
	f.speaker.waitSaid(t)
	f.transcriber.waitStarted(t)
	f.utter(t, "what am I looking at")
	f.speaker.waitSaid(t)
	f.transcriber.waitStarted(t)

	require.Len(t, requests, 2)
	first, second := requests[0], requests[1]
	assert.Equal(t, schemas.TierFast, first.Tier)
	assert.True(t, first.Options.ForceJSONFormat)

	assert.Equal(t, schemas.RoleSystem, first.Messages[0].Role)
	assert.Contains(t, first.Messages[0].Text, "*[1]<Button>Downloads</Button>")
	assert.Contains(t, first.Messages[0].Text, "Current Date and Time: 2026-05-01 08:30:00")
	assert.Contains(t, first.Messages[0].Text, "called Deskpilot")
	for _, placeholder := range []string{"{screen_context}", "{time_context}", "{assistant_name}"} {
		assert.NotContains(t, first.Messages[0].Text, placeholder)
	}

	assert.Contains(t, second.Messages[0].Text, "*[1]<TextArea>Draft</TextArea>")
	assert.NotContains(t, second.Messages[0].Text, "Downloads")
	roles := make([]schemas.Role, len(second.Messages))
	for i, m := range second.Messages {
		roles[i] = m.Role
	}
	assert.Equal(t, []schemas.Role{schemas.RoleSystem, schemas.RoleUser, schemas.RoleModel, schemas.RoleUser}, roles)
	assert.Equal(t, "Hi!", second.Messages[2].Text)
}

func TestSupervisor_DelegatesTask(t *testing.T) {
	f := newSupervisorFixture(t, nil, nil)
	f.decide(`{"Type":"Task","Reply":"Opening Notes.","Instruction":"open Notes and write a shopping list","Should End":"Continue"}`)

	f.start(t)
	f.utter(t, "make me a shopping list in notes")

	assert.Equal(t, "Opening Notes.", f.speaker.waitSaid(t))
	f.transcriber.waitStarted(t)
	assert.Equal(t, []string{"open Notes and write a shopping list"}, f.agent.Started())
	assert.True(t, f.agent.Busy(), "the supervisor does not wait for the task")
}

func TestSupervisor_BusyRejection(t *testing.T) {
	f := newSupervisorFixture(t, nil, nil)
	f.agent.busy, f.agent.task = true, "file the expense report"
	f.decide(`{"Type":"Task","Reply":"On it.","Instruction":"open Mail","Should End":"Continue"}`)

	f.start(t)
	f.utter(t, "open mail")

	notice := "I'm already working on 'file the expense report'. Ask me to stop it if you want to switch."
	assert.Equal(t, notice, f.speaker.waitSaid(t))
	f.transcriber.waitStarted(t)
	assert.Empty(t, f.agent.Started())

	history := f.sup.History()
	require.NotEmpty(t, history)
	assert.Equal(t, schemas.NewMessage(schemas.RoleModel, notice), history[len(history)-1])
}

func TestSupervisor_TaskStartErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps, *fakeAgent)
		want   string
	}{
		{
			name:   "permission checked before speaking",
			mutate: func(d *Deps, _ *fakeAgent) { d.Permissions = trust(false) },
			want:   "I need accessibility permissions to do that.",
		},
		{
			name:   "agent reports permission denied",
			mutate: func(_ *Deps, a *fakeAgent) { a.startErr = agent.ErrPermissionDenied },
			want:   "I need accessibility permissions to do that.",
		},
		{
			name:   "agent became busy",
			mutate: func(_ *Deps, a *fakeAgent) { a.startErr = agent.ErrAgentBusy },
			want:   "I'm already working on ''. Ask me to stop it if you want to switch.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fa *fakeAgent
			f := newSupervisorFixture(t, nil, func(d *Deps) {
				fa = d.Agent.(*fakeAgent)
				tt.mutate(d, fa)
			})
			f.decide(`{"Type":"Task","Reply":"Sure.","Instruction":"open Safari","Should End":"Continue"}`)

			f.start(t)
			f.utter(t, "open safari")

			spoken := f.speaker.waitSaid(t)
			if spoken == "Sure." {
				spoken = f.speaker.waitSaid(t)
			}
			assert.Equal(t, tt.want, spoken)
			f.transcriber.waitStarted(t)
			assert.Empty(t, fa.Started())
		})
	}
}

func TestSupervisor_KillTask(t *testing.T) {
	t.Run("running task is stopped", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.agent.busy, f.agent.task = true, "rename files"
		f.decide(`{"Type":"KillTask","Reply":"Cancelled.","Instruction":"","Should End":"Continue"}`)

		f.start(t)
		f.utter(t, "cancel that")

		assert.Equal(t, "Cancelled.", f.speaker.waitSaid(t))
		f.transcriber.waitStarted(t)
		assert.False(t, f.agent.Busy())
	})

	t.Run("nothing running", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.decide(`{"Type":"KillTask","Reply":"Cancelled.","Instruction":"","Should End":"Continue"}`)

		f.start(t)
		f.utter(t, "cancel that")

		assert.Equal(t, "There was no automation running, but I can help with something else.", f.speaker.waitSaid(t))
		f.transcriber.waitStarted(t)
	})
}

func TestSupervisor_ModelFailures(t *testing.T) {
	replies := []struct {
		name  string
		reply string
		err   error
	}{
		{"transport", "", errors.New("deadline exceeded")},
		{"malformed", "Sure! Here you go.", nil},
	}
	for _, tt := range replies {
		t.Run(tt.name, func(t *testing.T) {
			f := newSupervisorFixture(t, nil, nil)
			f.llm.On("Generate", mock.Anything, mock.Anything).Return(tt.reply, tt.err).Once()

			f.start(t)
			f.utter(t, "hello")

			assert.Equal(t, "I'm having trouble thinking right now. Could you repeat that?", f.speaker.waitSaid(t))
			f.transcriber.waitStarted(t)
			assert.Equal(t, StateListening, f.sup.State())
		})
	}
}

func TestSupervisor_EmptyReplyFallback(t *testing.T) {
	f := newSupervisorFixture(t, nil, nil)
	f.decide(`{"Type":"Reply","Reply":"","Instruction":"","Should End":"Continue"}`)

	f.start(t)
	f.utter(t, "hmm")
	assert.Equal(t, "I'm not sure how to respond to that.", f.speaker.waitSaid(t))
	f.transcriber.waitStarted(t)
}

func TestSupervisor_SessionEnds(t *testing.T) {
	t.Run("stop word", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.agent.busy = true

		f.start(t)
		f.utter(t, "Okay, stop.")

		assert.Equal(t, "Goodbye!", f.speaker.waitSaid(t))
		<-f.sup.Done()
		f.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
		assert.Equal(t, StateIdle, f.sup.State())
		assert.Nil(t, f.sup.History())
		assert.False(t, f.agent.Busy(), "ending the session stops the task")
	})

	t.Run("model finished", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.decide(`{"Type":"Reply","Reply":"Talk soon.","Instruction":"","Should End":"Finished"}`)

		f.start(t)
		f.utter(t, "that's all, thanks")

		assert.Equal(t, "Talk soon.", f.speaker.waitSaid(t))
		<-f.sup.Done()
		assert.Equal(t, StateIdle, f.sup.State())
		assert.Equal(t, 1, f.transcriber.Starts())
	})

	t.Run("input closed", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.start(t)
		f.transcriber.End()
		<-f.sup.Done()
		assert.Equal(t, StateIdle, f.sup.State())
	})
}

func TestSupervisor_StartStop(t *testing.T) {
	t.Run("second start is rejected", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.start(t)
		assert.ErrorIs(t, f.sup.StartSession(context.Background()), ErrSessionActive)
	})

	t.Run("stop is safe when idle", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		assert.NotPanics(t, f.sup.StopSession)
		assert.NotPanics(t, f.sup.StopSession)
		assert.Equal(t, StateIdle, f.sup.State())
	})

	t.Run("stop while listening", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.start(t)
		f.transcriber.Say(t, "half a sent")
		f.clock.waitScheduled(t)

		f.sup.StopSession()
		assert.Equal(t, StateIdle, f.sup.State())
		assert.Nil(t, f.sup.History())
		f.clock.Advance(debounce)
		f.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("stop while thinking", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		thinking := make(chan struct{})
		f.llm.On("Generate", mock.Anything, mock.Anything).
			Return("", context.Canceled).
			Run(func(args mock.Arguments) {
				close(thinking)
				<-args.Get(0).(context.Context).Done()
			}).Once()

		f.start(t)
		f.utter(t, "plan my week")
		<-thinking

		f.sup.StopSession()
		assert.Equal(t, StateIdle, f.sup.State())
		assert.Empty(t, f.speaker.Spoken(), "a cancelled turn says nothing")
		assert.GreaterOrEqual(t, f.agent.stops, 1)
	})

	t.Run("restart after stop", func(t *testing.T) {
		f := newSupervisorFixture(t, nil, nil)
		f.start(t)
		f.sup.StopSession()
		require.NoError(t, f.sup.Toggle(context.Background()))
		f.transcriber.waitStarted(t)
		assert.Equal(t, StateListening, f.sup.State())
		require.NoError(t, f.sup.Toggle(context.Background()))
		assert.Equal(t, StateIdle, f.sup.State())
	})
}

func TestIsStopCommand(t *testing.T) {
	for utterance, want := range map[string]bool{
		"stop":               true,
		"Please EXIT now":    true,
		"ok, stop.":          true,
		"stopwatch for tea":  false,
		"open the exit sign": true,
		"turn off the light": false,
	} {
		assert.Equal(t, want, isStopCommand(utterance), utterance)
	}
}
