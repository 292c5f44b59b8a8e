// internal/agent/executor.go
package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/filestore"
)

const (
	defaultWaitSeconds = 2
	maxWaitSeconds     = 60
)

// ActionHandler defines the function signature for executing one decoded action
// against the analysis that was shown to the model.
type ActionHandler func(ctx context.Context, act action.Action, analysis *accessibility.ScreenAnalysis) ActionResult

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ExecutorDeps are the collaborators an Executor drives. Speaker and Asker
// may be nil; the matching actions then fail with a result error.
type ExecutorDeps struct {
	Input   InputDispatcher
	Files   FileStore
	Apps    AppLauncher
	Speaker Speaker
	Asker   Asker
	Overlay Overlay
}

// Executor interprets decoded actions. Failures are reported through
// ActionResult and never as Go errors.
type Executor struct {
	logger          *zap.Logger
	deps            ExecutorDeps
	submitAfterType bool
	sleep           SleepFunc
	handlers        map[action.Kind]ActionHandler
}

// NewExecutor creates an executor and registers a handler for every action kind.
func NewExecutor(logger *zap.Logger, deps ExecutorDeps, submitAfterType bool, sleep SleepFunc) *Executor {
	if sleep == nil {
		sleep = contextSleep
	}
	e := &Executor{
		logger:          logger.Named("executor"),
		deps:            deps,
		submitAfterType: submitAfterType,
		sleep:           sleep,
		handlers:        make(map[action.Kind]ActionHandler),
	}
	e.registerHandlers()
	return e
}

// registerHandlers populates the handler map.
func (e *Executor) registerHandlers() {
	e.handlers[action.KindTap] = handle(e.tap)
	e.handlers[action.KindType] = handle(e.typeText)
	e.handlers[action.KindPressKey] = handle(e.pressKey)
	e.handlers[action.KindScroll] = handle(e.scroll)
	e.handlers[action.KindOpenApp] = handle(e.openApp)
	e.handlers[action.KindWait] = handle(e.wait)
	e.handlers[action.KindReadFile] = handle(e.readFile)
	e.handlers[action.KindWriteFile] = handle(e.writeFile)
	e.handlers[action.KindAppendFile] = handle(e.appendFile)
	e.handlers[action.KindSpeak] = handle(e.speak)
	e.handlers[action.KindAsk] = handle(e.ask)
	e.handlers[action.KindDone] = handle(e.done)
	e.handlers[action.KindBack] = handle(e.unsupported)
	e.handlers[action.KindHome] = handle(e.unsupported)
}

// handle adapts a typed handler to the registry signature.
func handle[T action.Action](fn func(context.Context, T, *accessibility.ScreenAnalysis) ActionResult) ActionHandler {
	return func(ctx context.Context, act action.Action, analysis *accessibility.ScreenAnalysis) ActionResult {
		typed, ok := act.(T)
		if !ok {
			return failure(ErrCodeInvalidParameters, fmt.Sprintf("Invalid payload type for %s action.", act.Kind()))
		}
		return fn(ctx, typed, analysis)
	}
}

// Execute runs one action. A panicking handler is converted into an
// EXECUTOR_PANIC result.
func (e *Executor) Execute(ctx context.Context, act action.Action, analysis *accessibility.ScreenAnalysis) (result ActionResult) {
	if act == nil {
		return failure(ErrCodeUnknownAction, "No action provided.")
	}
	handler, ok := e.handlers[act.Kind()]
	if !ok {
		return failure(ErrCodeUnknownAction, fmt.Sprintf("Unknown action type: %s", act.Kind()))
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic during action execution",
				zap.String("action", string(act.Kind())),
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())))
			result = failure(ErrCodeExecutorPanic, fmt.Sprintf("Action %s panicked: %v", act.Kind(), r))
		}
	}()

	result = handler(ctx, act, analysis)
	if result.Failed() {
		e.logger.Debug("Action failed",
			zap.String("action", string(act.Kind())),
			zap.String("code", string(result.ErrorCode)),
			zap.String("error", result.Error))
	}
	return result
}

// -- Input Handlers --

func (e *Executor) tap(ctx context.Context, a action.Tap, analysis *accessibility.ScreenAnalysis) ActionResult {
	if analysis == nil {
		return failure(ErrCodeElementNotFound, fmt.Sprintf("Element [%d] not found in current analysis.", a.Index))
	}
	el, err := analysis.Lookup(a.Index)
	if err != nil {
		return failure(ErrCodeElementNotFound, fmt.Sprintf("Element [%d] not found in current analysis.", a.Index))
	}
	frame, err := el.Frame(ctx)
	if err != nil || frame.Width <= 0 || frame.Height <= 0 {
		return failure(ErrCodeGeometryUnavailable,
			fmt.Sprintf("Could not click element [%d]: Unable to determine screen coordinates.", a.Index))
	}

	center := frame.Center()
	if err := e.deps.Input.Click(ctx, center); err != nil {
		return failure(ErrCodeExecutionFailure, fmt.Sprintf("Could not click element [%d]: %v", a.Index, err))
	}
	return memory(fmt.Sprintf("Clicked element [%d] at %d, %d.", a.Index, int(center.X), int(center.Y)))
}

// typeText sends the text to the focused control and, when submitAfterType
// is set, presses Enter afterwards.
func (e *Executor) typeText(ctx context.Context, a action.Type, _ *accessibility.ScreenAnalysis) ActionResult {
	if err := e.deps.Input.Type(ctx, a.Text); err != nil {
		return failure(ErrCodeExecutionFailure, fmt.Sprintf("Failed to type text: %v", err))
	}
	if !e.submitAfterType {
		return memory(fmt.Sprintf("Typed text: '%s'", a.Text))
	}
	if _, err := e.deps.Input.PressKey(ctx, "enter"); err != nil {
		return failure(ErrCodeExecutionFailure, fmt.Sprintf("Typed text but failed to press Enter: %v", err))
	}
	return memory(fmt.Sprintf("Typed text: '%s' and pressed Enter.", a.Text))
}

func (e *Executor) pressKey(ctx context.Context, a action.PressKey, _ *accessibility.ScreenAnalysis) ActionResult {
	ok, err := e.deps.Input.PressKey(ctx, a.Key)
	if err != nil {
		return failure(ErrCodeExecutionFailure, fmt.Sprintf("Failed to press key '%s': %v", a.Key, err))
	}
	if !ok {
		return failure(ErrCodeInvalidParameters, fmt.Sprintf("Unknown key name: '%s'", a.Key))
	}
	return memory(fmt.Sprintf("Pressed key: '%s'", a.Key))
}

func (e *Executor) scroll(ctx context.Context, a action.Scroll, _ *accessibility.ScreenAnalysis) ActionResult {
	if err := e.deps.Input.Scroll(ctx, a.Amount); err != nil {
		return failure(ErrCodeExecutionFailure, fmt.Sprintf("Failed to scroll: %v", err))
	}
	return memory(fmt.Sprintf("Scrolled %d pixels.", a.Amount))
}

func (e *Executor) wait(ctx context.Context, a action.Wait, _ *accessibility.ScreenAnalysis) ActionResult {
	seconds := a.Duration.Seconds(defaultWaitSeconds, maxWaitSeconds)
	if err := e.sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
		return failure(ErrCodeExecutionFailure, fmt.Sprintf("Wait interrupted: %v", err))
	}
	return memory(fmt.Sprintf("Waited for %d seconds.", seconds))
}

// -- Collaborator Handlers --

func (e *Executor) openApp(ctx context.Context, a action.OpenApp, _ *accessibility.ScreenAnalysis) ActionResult {
	if e.deps.Apps == nil {
		return failure(ErrCodeAppLaunchFailed, "No app launcher is available.")
	}
	status, err := e.deps.Apps.Launch(ctx, a.AppName)
	if err != nil {
		return failure(ErrCodeAppLaunchFailed, err.Error())
	}
	e.logger.Debug("App launch resolved", zap.String("status", status))
	return memory(fmt.Sprintf("Opened app: %s", a.AppName))
}

// readFile surfaces the content once, in the next prompt's read state.
func (e *Executor) readFile(_ context.Context, a action.ReadFile, _ *accessibility.ScreenAnalysis) ActionResult {
	content, err := e.deps.Files.Read(a.FileName)
	if err != nil {
		e.logger.Warn("File read failed", zap.String("file", a.FileName), zap.Error(err))
		return failure(ErrCodeFileStoreFailure, fmt.Sprintf("Failed to read %s", a.FileName))
	}
	return ActionResult{
		LongTermMemory:   fmt.Sprintf("Read file %s", a.FileName),
		ExtractedContent: content,
		IncludeOnce:      true,
	}
}

func (e *Executor) writeFile(_ context.Context, a action.WriteFile, _ *accessibility.ScreenAnalysis) ActionResult {
	if err := e.deps.Files.Write(a.FileName, a.Content); err != nil {
		e.logger.Warn("File write failed", zap.String("file", a.FileName), zap.Error(err))
		return failure(ErrCodeFileStoreFailure, fmt.Sprintf("Failed to write to %s", a.FileName))
	}
	if a.FileName == filestore.TodoFile && e.deps.Overlay != nil {
		e.deps.Overlay.SetTodo(a.Content)
	}
	return memory(fmt.Sprintf("Wrote content to file %s", a.FileName))
}

func (e *Executor) appendFile(_ context.Context, a action.AppendFile, _ *accessibility.ScreenAnalysis) ActionResult {
	if err := e.deps.Files.Append(a.FileName, a.Content); err != nil {
		e.logger.Warn("File append failed", zap.String("file", a.FileName), zap.Error(err))
		return failure(ErrCodeFileStoreFailure, fmt.Sprintf("Failed to append to %s", a.FileName))
	}
	if a.FileName == filestore.TodoFile && e.deps.Overlay != nil {
		if full, err := e.deps.Files.Read(a.FileName); err == nil {
			e.deps.Overlay.SetTodo(full)
		}
	}
	return memory(fmt.Sprintf("Appended content to file %s", a.FileName))
}

// speak blocks until the speaker is finished so spoken output never overlaps
// the next action.
func (e *Executor) speak(ctx context.Context, a action.Speak, _ *accessibility.ScreenAnalysis) ActionResult {
	if e.deps.Speaker == nil {
		return failure(ErrCodeSpeechFailure, "Speech output is not available.")
	}
	if err := e.deps.Speaker.Speak(ctx, a.Message); err != nil {
		return failure(ErrCodeSpeechFailure, fmt.Sprintf("Failed to speak: %v", err))
	}
	return memory(fmt.Sprintf("Spoke: %q", a.Message))
}

func (e *Executor) ask(ctx context.Context, a action.Ask, _ *accessibility.ScreenAnalysis) ActionResult {
	if e.deps.Asker == nil {
		return failure(ErrCodeNotImplemented, "Asking the user is not available.")
	}
	answer, err := e.deps.Asker.Ask(ctx, a.Question)
	if err != nil {
		return failure(ErrCodeExecutionFailure, fmt.Sprintf("Failed to ask the user: %v", err))
	}
	return memory(fmt.Sprintf("Asked: %q. User answered: %q", a.Question, answer))
}

func (e *Executor) done(_ context.Context, a action.Done, _ *accessibility.ScreenAnalysis) ActionResult {
	return ActionResult{
		IsDone:         true,
		Success:        a.Success,
		LongTermMemory: fmt.Sprintf("Task Completed: %s", a.Text),
		Attachments:    a.FilesToDisplay,
	}
}

func (e *Executor) unsupported(_ context.Context, a action.Action, _ *accessibility.ScreenAnalysis) ActionResult {
	return failure(ErrCodeNotImplemented, fmt.Sprintf("The %s action is not supported on this platform.", a.Kind()))
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
