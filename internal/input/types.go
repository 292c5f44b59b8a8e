// internal/input/types.go
package input

import (
	"context"
	"time"
)

// MouseEventType defines the type of mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton defines the mouse button.
type MouseButton string

const (
	ButtonNone  MouseButton = "none"
	ButtonLeft  MouseButton = "left"
	ButtonRight MouseButton = "right"
)

// MouseEventData holds the data required to dispatch a mouse event.
type MouseEventData struct {
	Type       MouseEventType
	X          float64
	Y          float64
	Button     MouseButton
	ClickCount int
	// DeltaY is used for MouseWheel events. Positive values scroll down.
	DeltaY float64
}

// KeyEventType distinguishes key down from key up.
type KeyEventType string

const (
	KeyDown KeyEventType = "keyDown"
	KeyUp   KeyEventType = "keyUp"
)

// KeyCode is a physical (virtual) key code.
type KeyCode uint16

// KeyEventData holds one keyboard event. Text carries the character for
// typed input; Code is used for named keys.
type KeyEventData struct {
	Type KeyEventType
	Code KeyCode
	Text string
}

// Executor is the OS event-injection boundary.
type Executor interface {
	// Sleep pauses execution, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error
	DispatchKeyEvent(ctx context.Context, data KeyEventData) error
	// FocusedRole returns the accessibility role of the system-wide focused element.
	FocusedRole(ctx context.Context) (string, error)
}

// Fixed holds between paired events. The OS coalesces events that arrive
// with no gap between them.
const (
	clickHold     = 50 * time.Millisecond
	keyPressHold  = 50 * time.Millisecond
	typeKeyHold   = 10 * time.Millisecond
	backspaceHold = 1 * time.Millisecond
)
