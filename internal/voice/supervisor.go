// internal/voice/supervisor.go
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/agent"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ErrSessionActive is returned by StartSession while a session is running.
var ErrSessionActive = errors.New("voice session already active")

const (
	goodbyeNotice     = "Goodbye!"
	thinkingTrouble   = "I'm having trouble thinking right now. Could you repeat that?"
	permissionNotice  = "I need accessibility permissions to do that."
	nothingRunning    = "There was no automation running, but I can help with something else."
	busyNoticeFormat  = "I'm already working on '%s'. Ask me to stop it if you want to switch."
	defaultAssistName = "Deskpilot"
)

// SessionState is the supervisor's position in the conversation.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateListening    SessionState = "listening"
	StateThinking     SessionState = "thinking"
	StateSpeaking     SessionState = "speaking"
	StateDelegating   SessionState = "delegating"
	StateShuttingDown SessionState = "shutting_down"
)

// Transcriber streams the latest full transcript of the current utterance.
type Transcriber interface {
	Start(ctx context.Context) (<-chan string, error)
	Stop()
}

// Speaker plays one utterance and returns when it is finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Captioner shows what is being heard.
type Captioner interface {
	ShowCaption(text string)
	HideCaption()
}

// Perceiver supplies the screen context for each turn.
type Perceiver interface {
	Analyze(ctx context.Context) (*accessibility.ScreenAnalysis, error)
}

// TaskAgent is the automation loop the supervisor delegates to.
type TaskAgent interface {
	Start(ctx context.Context, task string) error
	Stop()
	Wait()
	Busy() bool
	CurrentTask() string
}

// Deps are the supervisor's collaborators. Perceiver, Captioner and
// Permissions are optional.
type Deps struct {
	LLM         schemas.LLMClient
	Transcriber Transcriber
	Speaker     Speaker
	Agent       TaskAgent
	Perceiver   Perceiver
	Captioner   Captioner
	Permissions accessibility.PermissionChecker
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithAfterFunc replaces the debounce scheduler.
func WithAfterFunc(after AfterFunc) Option {
	return func(s *Supervisor) { s.after = after }
}

// WithClock replaces the wall clock used in the system turn.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor runs the listen, think, act conversation on top of one task
// agent. At most one session runs at a time.
type Supervisor struct {
	logger *zap.Logger
	cfg    config.VoiceConfig
	deps   Deps
	after  AfterFunc
	now    func() time.Time

	mu        sync.Mutex
	state     SessionState
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
	history   []schemas.Message

	wg sync.WaitGroup
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor(logger *zap.Logger, cfg config.VoiceConfig, deps Deps, opts ...Option) *Supervisor {
	if cfg.AssistantName == "" {
		cfg.AssistantName = defaultAssistName
	}
	s := &Supervisor{
		logger: logger.Named("voice"),
		cfg:    cfg,
		deps:   deps,
		after:  SystemAfterFunc,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current session state.
func (s *Supervisor) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation, system turn first.
func (s *Supervisor) History() []schemas.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.Message(nil), s.history...)
}

// Done is closed when the current session ends. It returns a closed channel
// when no session has been started.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return s.done
}

// StartSession reseeds the conversation and begins listening.
func (s *Supervisor) StartSession(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionActive
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	s.sessionID = uuid.New().String()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.history = []schemas.Message{schemas.NewMessage(schemas.RoleSystem, systemTemplate)}
	s.state = StateListening
	done, id := s.done, s.sessionID
	s.mu.Unlock()

	logger := s.logger.With(zap.String("session_id", id))
	logger.Info("Session Started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer s.finish(logger)
		s.run(sessionCtx, logger)
	}()
	return nil
}

// StopSession ends the session from any state and waits for it to unwind.
// It stops transcription, speech and any running task, and clears the
// conversation.
func (s *Supervisor) StopSession() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.interrupt()
	s.wg.Wait()
}

// Toggle starts an idle session or stops a running one.
func (s *Supervisor) Toggle(ctx context.Context) error {
	if s.State() == StateIdle {
		return s.StartSession(ctx)
	}
	s.StopSession()
	return nil
}

// interrupt halts every collaborator that may be blocking the session.
func (s *Supervisor) interrupt() {
	s.deps.Transcriber.Stop()
	s.deps.Speaker.Stop()
	if s.deps.Agent != nil {
		s.deps.Agent.Stop()
	}
	if s.deps.Captioner != nil {
		s.deps.Captioner.HideCaption()
	}
}

// finish runs on the session goroutine once the conversation is over.
func (s *Supervisor) finish(logger *zap.Logger) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.state = StateShuttingDown
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.interrupt()

	s.mu.Lock()
	s.history = nil
	s.state = StateIdle
	s.mu.Unlock()
	logger.Info("Session Stopped")
}

func (s *Supervisor) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateShuttingDown {
		s.state = state
	}
}

// run alternates listening and thinking until the session ends.
func (s *Supervisor) run(ctx context.Context, logger *zap.Logger) {
	for {
		utterance, err := s.listen(ctx, logger)
		if err != nil {
			if errors.Is(err, errInputClosed) {
				logger.Info("Transcript stream closed")
				// A delegated task keeps running until it finishes.
				if s.deps.Agent != nil {
					s.deps.Agent.Wait()
				}
			} else if ctx.Err() == nil {
				logger.Error("Listening failed", zap.Error(err))
			}
			return
		}
		if !s.think(ctx, logger, utterance) {
			return
		}
	}
}

var errInputClosed = errors.New("transcript stream closed")

// listen returns the first utterance followed by the configured silence.
func (s *Supervisor) listen(ctx context.Context, logger *zap.Logger) (string, error) {
	s.setState(StateListening)
	logger.Debug("Listening...")

	stream, err := s.deps.Transcriber.Start(ctx)
	if err != nil {
		return "", fmt.Errorf("start transcription: %w", err)
	}
	defer s.deps.Transcriber.Stop()

	commits := make(chan string, 1)
	deb := NewDebouncer(s.cfg.SilenceDebounce, s.after, func(v string) { commits <- v })
	defer deb.Cancel()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case text, ok := <-stream:
			if !ok {
				stream = nil
				if !deb.Pending() {
					return "", errInputClosed
				}
				continue
			}
			if text == "" {
				continue
			}
			if s.deps.Captioner != nil {
				s.deps.Captioner.ShowCaption(text)
			}
			deb.Push(text)

		case text := <-commits:
			logger.Info("Silence detected. Committing", zap.String("utterance", text))
			if s.deps.Captioner != nil {
				s.deps.Captioner.HideCaption()
			}
			return text, nil
		}
	}
}

// think handles one utterance and reports whether to keep listening.
func (s *Supervisor) think(ctx context.Context, logger *zap.Logger, utterance string) bool {
	logger.Info("User said", zap.String("utterance", utterance))

	if isStopCommand(utterance) {
		s.shutdown(ctx, logger, goodbyeNotice, "command")
		return false
	}

	s.setState(StateThinking)
	messages, ok := s.prepareTurn(ctx, utterance)
	if !ok {
		return false
	}

	text, err := s.deps.LLM.Generate(ctx, schemas.GenerationRequest{
		Messages: messages,
		Tier:     schemas.TierFast,
		Options:  schemas.GenerationOptions{ForceJSONFormat: true},
	})
	if ctx.Err() != nil {
		return false
	}
	var decision Decision
	if err == nil {
		decision, err = ParseDecision(text)
	}
	if err != nil {
		logger.Warn("Voice decision failed", zap.Error(err))
		return s.speak(ctx, logger, thinkingTrouble)
	}

	logger.Info("Decision",
		zap.String("type", string(decision.Type)),
		zap.String("reply", decision.Reply),
		zap.String("should_end", decision.ShouldEnd),
	)

	switch decision.Type {
	case DecisionTask:
		return s.delegate(ctx, logger, decision)
	case DecisionKillTask:
		if s.deps.Agent != nil && s.deps.Agent.Busy() {
			s.deps.Agent.Stop()
			return s.speak(ctx, logger, decision.SafeReply())
		}
		return s.speak(ctx, logger, nothingRunning)
	default:
		reply := decision.SafeReply()
		s.appendModel(reply)
		if decision.Finished() {
			s.shutdown(ctx, logger, reply, "model_ended")
			return false
		}
		return s.speak(ctx, logger, reply)
	}
}

// prepareTurn re-renders the system turn and appends the utterance. It
// returns a snapshot of the conversation to send.
func (s *Supervisor) prepareTurn(ctx context.Context, utterance string) ([]schemas.Message, bool) {
	var screen string
	if s.deps.Perceiver != nil {
		if analysis, err := s.deps.Perceiver.Analyze(ctx); err == nil && analysis != nil {
			screen = analysis.UIRepresentation
		} else if err != nil {
			s.logger.Debug("Screen context unavailable", zap.Error(err))
		}
	}
	system := renderSystemPrompt(s.cfg.AssistantName, screen, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return nil, false
	}
	s.history[0] = schemas.NewMessage(schemas.RoleSystem, system)
	s.history = append(s.history, schemas.NewMessage(schemas.RoleUser, utterance))
	return append([]schemas.Message(nil), s.history...), true
}

func (s *Supervisor) appendModel(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) > 0 {
		s.history = append(s.history, schemas.NewMessage(schemas.RoleModel, text))
	}
}

// delegate starts the task agent without waiting for the task to finish.
func (s *Supervisor) delegate(ctx context.Context, logger *zap.Logger, d Decision) bool {
	if s.deps.Agent == nil {
		return s.speak(ctx, logger, thinkingTrouble)
	}
	if s.deps.Agent.Busy() {
		notice := fmt.Sprintf(busyNoticeFormat, s.deps.Agent.CurrentTask())
		s.appendModel(notice)
		return s.speak(ctx, logger, notice)
	}
	if s.deps.Permissions != nil && !s.deps.Permissions.Trusted(ctx) {
		s.appendModel(permissionNotice)
		return s.speak(ctx, logger, permissionNotice)
	}

	s.setState(StateDelegating)
	instruction := d.Instruction
	if instruction == "" {
		instruction = d.Reply
	}
	logger.Info("Starting task agent", zap.String("instruction", instruction))
	if !s.speak(ctx, logger, d.SafeReply()) {
		return false
	}

	switch err := s.deps.Agent.Start(ctx, instruction); {
	case err == nil:
		return true
	case errors.Is(err, agent.ErrAgentBusy):
		notice := fmt.Sprintf(busyNoticeFormat, s.deps.Agent.CurrentTask())
		s.appendModel(notice)
		return s.speak(ctx, logger, notice)
	case errors.Is(err, agent.ErrPermissionDenied):
		s.appendModel(permissionNotice)
		return s.speak(ctx, logger, permissionNotice)
	default:
		logger.Error("Task agent failed to start", zap.Error(err))
		return s.speak(ctx, logger, thinkingTrouble)
	}
}

// speak says text and reports whether the session is still alive.
func (s *Supervisor) speak(ctx context.Context, logger *zap.Logger, text string) bool {
	s.setState(StateSpeaking)
	if err := s.deps.Speaker.Speak(ctx, text); err != nil && ctx.Err() == nil {
		logger.Warn("Speech failed", zap.Error(err))
	}
	return ctx.Err() == nil
}

func (s *Supervisor) shutdown(ctx context.Context, logger *zap.Logger, message, reason string) {
	logger.Info("Shutting down", zap.String("reason", reason))
	s.speak(ctx, logger, message)
}
