// internal/input/dispatcher.go
package input

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/accessibility"
)

// textInputRoles are the focused roles that accept typed text.
var textInputRoles = map[string]struct{}{
	"TextField": {},
	"TextArea":  {},
	"ComboBox":  {},
}

// Dispatcher synthesizes pointer, keyboard and scroll input. It holds no
// state beyond its executor.
type Dispatcher struct {
	logger *zap.Logger
	exec   Executor
}

// NewDispatcher creates a dispatcher over the given executor.
func NewDispatcher(logger *zap.Logger, exec Executor) *Dispatcher {
	return &Dispatcher{
		logger: logger.Named("input"),
		exec:   exec,
	}
}

// Click performs a left click at the given point.
func (d *Dispatcher) Click(ctx context.Context, p accessibility.Point) error {
	return d.click(ctx, p, ButtonLeft)
}

// RightClick performs a right click at the given point.
func (d *Dispatcher) RightClick(ctx context.Context, p accessibility.Point) error {
	return d.click(ctx, p, ButtonRight)
}

func (d *Dispatcher) click(ctx context.Context, p accessibility.Point, button MouseButton) error {
	move := MouseEventData{Type: MouseMove, X: p.X, Y: p.Y, Button: ButtonNone}
	if err := d.exec.DispatchMouseEvent(ctx, move); err != nil {
		return fmt.Errorf("input: move to (%.0f, %.0f): %w", p.X, p.Y, err)
	}
	press := MouseEventData{Type: MousePress, X: p.X, Y: p.Y, Button: button, ClickCount: 1}
	if err := d.exec.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("input: %s press: %w", button, err)
	}
	if err := d.exec.Sleep(ctx, clickHold); err != nil {
		// Never leave a button held down.
		_ = d.exec.DispatchMouseEvent(context.WithoutCancel(ctx), MouseEventData{Type: MouseRelease, X: p.X, Y: p.Y, Button: button, ClickCount: 1})
		return err
	}
	release := MouseEventData{Type: MouseRelease, X: p.X, Y: p.Y, Button: button, ClickCount: 1}
	if err := d.exec.DispatchMouseEvent(ctx, release); err != nil {
		return fmt.Errorf("input: %s release: %w", button, err)
	}
	d.logger.Debug("Clicked", zap.String("button", string(button)), zap.Float64("x", p.X), zap.Float64("y", p.Y))
	return nil
}

// Type sends text to the focused control one character at a time.
func (d *Dispatcher) Type(ctx context.Context, text string) error {
	for _, r := range text {
		ch := string(r)
		if err := d.exec.DispatchKeyEvent(ctx, KeyEventData{Type: KeyDown, Text: ch}); err != nil {
			return fmt.Errorf("input: type %q: %w", ch, err)
		}
		if err := d.exec.Sleep(ctx, typeKeyHold); err != nil {
			return err
		}
		if err := d.exec.DispatchKeyEvent(ctx, KeyEventData{Type: KeyUp, Text: ch}); err != nil {
			return fmt.Errorf("input: type %q: %w", ch, err)
		}
	}
	return nil
}

// PressKey presses and releases a named key. Unknown names report false
// without dispatching anything.
func (d *Dispatcher) PressKey(ctx context.Context, name string) (bool, error) {
	code, ok := LookupKey(name)
	if !ok {
		d.logger.Debug("Unknown key name", zap.String("key", name))
		return false, nil
	}
	if err := d.tap(ctx, code, keyPressHold); err != nil {
		return true, fmt.Errorf("input: press %q: %w", name, err)
	}
	return true, nil
}

// Scroll scrolls the view under the pointer. Positive amounts scroll down,
// moving content up.
func (d *Dispatcher) Scroll(ctx context.Context, amount int) error {
	wheel := MouseEventData{Type: MouseWheel, DeltaY: float64(amount) / 10}
	if err := d.exec.DispatchMouseEvent(ctx, wheel); err != nil {
		return fmt.Errorf("input: scroll %d: %w", amount, err)
	}
	return nil
}

// Delete sends count backspaces. Used to correct live dictation.
func (d *Dispatcher) Delete(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		if err := d.tap(ctx, KeyCodeDelete, backspaceHold); err != nil {
			return fmt.Errorf("input: delete %d/%d: %w", i+1, count, err)
		}
	}
	return nil
}

// IsTextFieldFocused reports whether the focused element accepts text.
func (d *Dispatcher) IsTextFieldFocused(ctx context.Context) bool {
	role, err := d.exec.FocusedRole(ctx)
	if err != nil {
		return false
	}
	_, ok := textInputRoles[strings.TrimPrefix(role, "AX")]
	return ok
}

func (d *Dispatcher) tap(ctx context.Context, code KeyCode, hold time.Duration) error {
	if err := d.exec.DispatchKeyEvent(ctx, KeyEventData{Type: KeyDown, Code: code}); err != nil {
		return err
	}
	if err := d.exec.Sleep(ctx, hold); err != nil {
		_ = d.exec.DispatchKeyEvent(context.WithoutCancel(ctx), KeyEventData{Type: KeyUp, Code: code})
		return err
	}
	return d.exec.DispatchKeyEvent(ctx, KeyEventData{Type: KeyUp, Code: code})
}
