// File: internal/agent/interfaces.go
package agent

import (
	"context"
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/accessibility"
	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/store"
)

// Perceiver produces one ScreenAnalysis per call. Each call invalidates the
// index map of the previous one.
type Perceiver interface {
	Analyze(ctx context.Context) (*accessibility.ScreenAnalysis, error)
}

// Decider turns a rendered prompt into the model's next decision. Transport
// and decode failures are both returned as errors.
type Decider interface {
	GenerateAgentOutput(ctx context.Context, messages []schemas.Message) (*action.AgentOutput, error)
}

// InputDispatcher synthesizes pointer and keyboard events.
type InputDispatcher interface {
	Click(ctx context.Context, p accessibility.Point) error
	Type(ctx context.Context, text string) error
	// PressKey reports false for names missing from the key table.
	PressKey(ctx context.Context, name string) (bool, error)
	Scroll(ctx context.Context, amount int) error
}

// FileStore is the per-task file store.
type FileStore interface {
	Reset() error
	Read(name string) (string, error)
	Write(name, content string) error
	Append(name, content string) error
	Root() string
}

// AppLauncher resolves and opens installed applications.
type AppLauncher interface {
	Launch(ctx context.Context, name string) (string, error)
}

// Speaker blocks until the text has been spoken. Stop cuts speech short.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Asker shows a blocking prompt and returns the user's reply.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Overlay receives debug visualization updates.
type Overlay interface {
	Update(elements []accessibility.DetectedElement)
	Clear()
	SetTodo(content string)
}

// Journal persists runs and their steps.
type Journal interface {
	BeginRun(ctx context.Context, id, task string, at time.Time) error
	RecordStep(ctx context.Context, step store.Step) error
	FinishRun(ctx context.Context, id string, done, success bool, reason string, at time.Time) error
}

// PreferenceSource renders the user-info section of the system prompt.
type PreferenceSource interface {
	UserInfoSection() string
}
