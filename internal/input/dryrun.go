package input

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one recorded dispatch.
type Event struct {
	Mouse *MouseEventData
	Key   *KeyEventData
}

// DryRunExecutor logs and records every event instead of injecting it into
// the OS. Sleeps are honored so pacing matches a real backend.
type DryRunExecutor struct {
	logger *zap.Logger

	mu          sync.Mutex
	events      []Event
	focusedRole string
}

var _ Executor = (*DryRunExecutor)(nil)

// NewDryRunExecutor creates a recording executor.
func NewDryRunExecutor(logger *zap.Logger) *DryRunExecutor {
	return &DryRunExecutor{logger: logger.Named("input.dryrun")}
}

func (e *DryRunExecutor) Sleep(ctx context.Context, d time.Duration) error {
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

func (e *DryRunExecutor) DispatchMouseEvent(ctx context.Context, data MouseEventData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.logger.Debug("mouse",
		zap.String("type", string(data.Type)),
		zap.String("button", string(data.Button)),
		zap.Float64("x", data.X),
		zap.Float64("y", data.Y),
		zap.Float64("delta_y", data.DeltaY),
	)
	e.mu.Lock()
	e.events = append(e.events, Event{Mouse: &data})
	e.mu.Unlock()
	return nil
}

func (e *DryRunExecutor) DispatchKeyEvent(ctx context.Context, data KeyEventData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.logger.Debug("key",
		zap.String("type", string(data.Type)),
		zap.Uint16("code", uint16(data.Code)),
		zap.String("text", data.Text),
	)
	e.mu.Lock()
	e.events = append(e.events, Event{Key: &data})
	e.mu.Unlock()
	return nil
}

func (e *DryRunExecutor) FocusedRole(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focusedRole, nil
}

// SetFocusedRole sets the role reported by FocusedRole.
func (e *DryRunExecutor) SetFocusedRole(role string) {
	e.mu.Lock()
	e.focusedRole = role
	e.mu.Unlock()
}

// Events returns a copy of everything dispatched so far.
func (e *DryRunExecutor) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// TypedText reconstructs the text left by key-down events. Each backspace
// removes the last character.
func (e *DryRunExecutor) TypedText() string {
	var text []rune
	for _, ev := range e.Events() {
		if ev.Key == nil || ev.Key.Type != KeyDown {
			continue
		}
		if ev.Key.Text == "" && ev.Key.Code == KeyCodeDelete {
			if len(text) > 0 {
				text = text[:len(text)-1]
			}
			continue
		}
		text = append(text, []rune(ev.Key.Text)...)
	}
	return string(text)
}
