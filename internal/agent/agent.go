package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StopReason explains why a run ended.
type StopReason string

const (
	ReasonDone           StopReason = "done"
	ReasonStepCeiling    StopReason = "step_ceiling"
	ReasonFailureCeiling StopReason = "failure_ceiling"
	ReasonStopped        StopReason = "stopped"
	ReasonPanic          StopReason = "panic"
)

// Outcome summarizes a finished run.
type Outcome struct {
	RunID       string
	Task        string
	Steps       int
	Done        bool
	Success     bool
	Text        string
	Attachments []string
	Reason      StopReason
}

// Deps are the collaborators of an Agent. Journal, Preferences, Permissions,
// Speaker and Asker are optional.
type Deps struct {
	Perceiver   Perceiver
	Decider     Decider
	Input       InputDispatcher
	Files       FileStore
	Apps        AppLauncher
	Speaker     Speaker
	Asker       Asker
	Overlay     Overlay
	Journal     Journal
	Preferences PreferenceSource
	Permissions accessibility.PermissionChecker
}

// Option customizes an Agent.
type Option func(*Agent)

// WithSleep replaces the pacing and backoff sleep.
func WithSleep(fn SleepFunc) Option { return func(a *Agent) { a.sleep = fn } }

// WithClock replaces the wall clock used in prompts and the journal.
func WithClock(now func() time.Time) Option { return func(a *Agent) { a.now = now } }

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(fn func() string) Option { return func(a *Agent) { a.newID = fn } }

// WithStateListener registers a callback invoked with a snapshot after every
// state change. It runs on the loop goroutine and must not block.
func WithStateListener(fn func(Snapshot)) Option { return func(a *Agent) { a.listener = fn } }

// Agent runs the perceive, decide, act loop for one task at a time.
type Agent struct {
	logger   *zap.Logger
	cfg      config.AgentConfig
	deps     Deps
	executor *Executor
	state    *State

	sleep    SleepFunc
	now      func() time.Time
	newID    func() string
	listener func(Snapshot)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an idle agent.
func New(logger *zap.Logger, cfg config.AgentConfig, deps Deps, opts ...Option) *Agent {
	a := &Agent{
		logger: logger.Named("agent"),
		cfg:    cfg,
		deps:   deps,
		state:  NewState(),
		sleep:  contextSleep,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.executor = NewExecutor(logger, ExecutorDeps{
		Input:   deps.Input,
		Files:   deps.Files,
		Apps:    deps.Apps,
		Speaker: deps.Speaker,
		Asker:   deps.Asker,
		Overlay: deps.Overlay,
	}, cfg.SubmitAfterType, a.sleep)
	return a
}

// State exposes the shared agent state for read-only observers.
func (a *Agent) State() *State { return a.state }

// Busy reports whether a run is in progress.
func (a *Agent) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// CurrentTask returns the task of the current or most recent run.
func (a *Agent) CurrentTask() string { return a.state.Task() }

// Start launches a run in the background and returns once it is underway.
func (a *Agent) Start(ctx context.Context, task string) error {
	runCtx, runID, err := a.begin(ctx, task)
	if err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop(runCtx, runID, task)
	}()
	return nil
}

// Run executes a task and blocks until the loop stops.
func (a *Agent) Run(ctx context.Context, task string) (Outcome, error) {
	runCtx, runID, err := a.begin(ctx, task)
	if err != nil {
		return Outcome{}, err
	}
	return a.loop(runCtx, runID, task), nil
}

// Stop asks the running loop to end. It is safe to call at any time and
// interrupts in-flight perception, model calls and sleeps.
func (a *Agent) Stop() {
	a.state.requestStop()
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if a.deps.Overlay != nil {
		a.deps.Overlay.Clear()
	}
}

// Wait blocks until every run started with Start has returned.
func (a *Agent) Wait() { a.wg.Wait() }

func (a *Agent) begin(ctx context.Context, task string) (context.Context, string, error) {
	if a.deps.Permissions != nil && !a.deps.Permissions.Trusted(ctx) {
		return nil, "", ErrPermissionDenied
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil, "", ErrAgentBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	runID := a.newID()
	a.running = true
	a.cancel = cancel
	a.state.reset(runID, task)
	return runCtx, runID, nil
}

func (a *Agent) end() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = nil
	a.running = false
}

// loop is the state machine body. It owns every write to the step, task and
// output fields of the state.
func (a *Agent) loop(ctx context.Context, runID, task string) (out Outcome) {
	logger := a.logger.With(zap.String("run_id", runID))
	out = Outcome{RunID: runID, Task: task}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Agent loop panicked",
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())))
			out.Reason = ReasonPanic
		}
		a.state.requestStop()
		if a.deps.Overlay != nil {
			a.deps.Overlay.Clear()
		}
		out.Steps = a.state.stepCount()
		a.finishJournal(logger, out)
		a.end()
		logger.Info("Agent Stopped",
			zap.String("reason", string(out.Reason)),
			zap.Int("steps", out.Steps))
		a.notify()
	}()

	logger.Info("Agent starting task", zap.String("task", task))
	if err := a.deps.Files.Reset(); err != nil {
		logger.Warn("Could not reset the file store", zap.Error(err))
	}
	a.beginJournal(ctx, logger, runID, task)
	a.notify()

	userInfo := "User: Computer Owner"
	if a.deps.Preferences != nil {
		userInfo = a.deps.Preferences.UserInfoSection()
	}
	messages := NewMessageManager(task, a.deps.Files, SystemPrompt(a.cfg.MaxActionsPerStep, userInfo), a.cfg.HistoryMaxItems, a.cfg.MaxUILength)
	messages.now = a.now
	maxSteps := a.cfg.MaxSteps()

	var (
		lastOutput  *action.AgentOutput
		lastResults []ActionResult
	)
	for !a.state.Stopped() && a.state.stepCount() < maxSteps {
		if ctx.Err() != nil {
			break
		}
		step := StepInfo{Number: a.state.stepCount(), MaxSteps: maxSteps}

		// -- Sense --
		analysis, err := a.deps.Perceiver.Analyze(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("Perception failed", zap.Error(err))
			analysis = &accessibility.ScreenAnalysis{UIRepresentation: "No active application.", AppName: "None"}
		}
		if a.deps.Overlay != nil {
			a.deps.Overlay.Update(analysis.Elements)
		}

		// -- Think --
		prompt := messages.CreateMessages(lastOutput, lastResults, step, analysis)
		output, err := a.deps.Decider.GenerateAgentOutput(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures := a.state.recordFailure()
			logger.Warn("LLM Failure", zap.Int("consecutive_failures", failures), zap.Error(err))
			lastOutput, lastResults = nil, nil
			a.recordStep(ctx, logger, runID, step.Number, analysis.AppName, nil, nil, err)
			a.notify()
			if failures > a.cfg.MaxConsecutiveFailures {
				out.Reason = ReasonFailureCeiling
				break
			}
			if err := a.sleep(ctx, a.cfg.FailureBackoff); err != nil {
				break
			}
			continue
		}
		a.state.recordOutput(output)
		a.notify()
		logger.Info("Goal", zap.String("next_goal", output.NextGoal))

		// -- Act --
		results := a.act(ctx, logger, output.Actions, analysis, &out)
		a.state.recordResults(results)
		lastOutput, lastResults = output, results
		a.recordStep(ctx, logger, runID, step.Number, analysis.AppName, output, results, nil)
		a.notify()

		if !a.state.Stopped() {
			if err := a.sleep(ctx, a.cfg.StepDelay); err != nil {
				break
			}
		}
	}

	if out.Reason == "" {
		switch {
		case out.Done:
			out.Reason = ReasonDone
		case !a.state.Stopped() && a.state.stepCount() >= maxSteps:
			out.Reason = ReasonStepCeiling
		default:
			out.Reason = ReasonStopped
		}
	}
	return out
}

// act runs the step's actions in order and stops at the first failure.
func (a *Agent) act(ctx context.Context, logger *zap.Logger, actions []action.Action, analysis *accessibility.ScreenAnalysis, out *Outcome) []ActionResult {
	if limit := a.cfg.MaxActionsPerStep; limit > 0 && len(actions) > limit {
		logger.Warn("Model returned too many actions, truncating",
			zap.Int("returned", len(actions)), zap.Int("limit", limit))
		actions = actions[:limit]
	}

	results := make([]ActionResult, 0, len(actions))
	for _, act := range actions {
		if ctx.Err() != nil {
			break
		}
		res := a.executor.Execute(ctx, act, analysis)
		results = append(results, res)

		if res.Failed() {
			logger.Info("  -> "+res.Error, zap.String("action", string(act.Kind())), zap.String("code", string(res.ErrorCode)))
			break
		}
		logger.Info("  -> "+res.LongTermMemory, zap.String("action", string(act.Kind())))
		if res.IsDone {
			a.state.requestStop()
			out.Done = true
			out.Success = res.Success
			if d, ok := act.(action.Done); ok {
				out.Text = d.Text
			}
			out.Attachments = res.Attachments
			logger.Info("Task Done!", zap.Bool("success", res.Success))
		}
	}
	return results
}

func (a *Agent) notify() {
	if a.listener != nil {
		a.listener(a.state.Snapshot())
	}
}

// -- Journal --

func (a *Agent) beginJournal(ctx context.Context, logger *zap.Logger, runID, task string) {
	if a.deps.Journal == nil {
		return
	}
	if err := a.deps.Journal.BeginRun(ctx, runID, task, a.now()); err != nil {
		logger.Warn("Could not journal run start", zap.Error(err))
	}
}

func (a *Agent) recordStep(ctx context.Context, logger *zap.Logger, runID string, number int, app string, output *action.AgentOutput, results []ActionResult, cause error) {
	if a.deps.Journal == nil {
		return
	}
	step := store.Step{RunID: runID, Number: number, App: app, Recorded: a.now()}
	if output != nil {
		if data, err := json.Marshal(output); err == nil {
			step.Output = string(data)
		}
	}
	if results != nil {
		if data, err := json.Marshal(results); err == nil {
			step.Results = string(data)
		}
	}
	if cause != nil {
		step.Failure = cause.Error()
	}
	if err := a.deps.Journal.RecordStep(ctx, step); err != nil {
		logger.Warn("Could not journal step", zap.Int("step", number), zap.Error(err))
	}
}

// finishJournal runs after cancellation, so it uses a context detached from the run.
func (a *Agent) finishJournal(logger *zap.Logger, out Outcome) {
	if a.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reason := string(out.Reason)
	if out.Text != "" {
		reason = fmt.Sprintf("%s: %s", reason, out.Text)
	}
	if err := a.deps.Journal.FinishRun(ctx, out.RunID, out.Done, out.Success, reason, a.now()); err != nil {
		logger.Warn("Could not journal run finish", zap.Error(err))
	}
}
