// internal/voice/dictation.go
package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

var (
	// ErrDictationActive is returned by Press while the talk key is held.
	ErrDictationActive = errors.New("dictation already active")
	// ErrDictationIdle is returned by Release when nothing is recording.
	ErrDictationIdle = errors.New("dictation not active")
	// ErrNothingDictated is returned by Release when no text reached the
	// focused field.
	ErrNothingDictated = errors.New("no text dictated")
)

// TextEditor edits the focused text field.
type TextEditor interface {
	Type(ctx context.Context, text string) error
	Delete(ctx context.Context, count int) error
	IsTextFieldFocused(ctx context.Context) bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DictationOption customizes a Dictation.
type DictationOption func(*Dictation)

// WithTailSleep replaces the wait that runs between release and stop.
func WithTailSleep(sleep SleepFunc) DictationOption {
	return func(d *Dictation) { d.sleep = sleep }
}

// Dictation types a live transcript into the focused field while the talk
// key is held. Each update rewrites only the part of the field that changed.
type Dictation struct {
	logger      *zap.Logger
	transcriber Transcriber
	editor      TextEditor
	tail        time.Duration
	sleep       SleepFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	typed  []rune
}

// NewDictation creates an idle dictation pipeline.
func NewDictation(logger *zap.Logger, cfg config.VoiceConfig, transcriber Transcriber, editor TextEditor, opts ...DictationOption) *Dictation {
	d := &Dictation{
		logger:      logger.Named("dictation"),
		transcriber: transcriber,
		editor:      editor,
		tail:        cfg.DictationTail,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Press starts recording and typing. It corresponds to the talk key going
// down.
func (d *Dictation) Press(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return ErrDictationActive
	}
	stream, err := d.transcriber.Start(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel, d.done, d.typed = cancel, done, nil

	go func() {
		defer close(done)
		d.consume(runCtx, stream)
	}()
	d.logger.Debug("Dictation started")
	return nil
}

// Done is closed once the transcript stream of the current press ends. It
// returns nil while idle.
func (d *Dictation) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Release keeps recording for the configured tail, then stops and returns
// the text left in the field. ErrNothingDictated reports an empty result.
func (d *Dictation) Release(ctx context.Context) (string, error) {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if done == nil {
		return "", ErrDictationIdle
	}

	if err := d.sleep(ctx, d.tail); err != nil {
		d.logger.Debug("Dictation tail cut short", zap.Error(err))
	}
	d.transcriber.Stop()
	cancel()
	<-done

	d.mu.Lock()
	text := string(d.typed)
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if text == "" {
		d.logger.Info("No text detected during dictation")
		return "", ErrNothingDictated
	}
	d.logger.Debug("Dictation finished", zap.Int("chars", len([]rune(text))))
	return text, nil
}

// Text returns what dictation has typed so far.
func (d *Dictation) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.typed)
}

func (d *Dictation) consume(ctx context.Context, stream <-chan string) {
	last := ""
	for {
		select {
		case text, ok := <-stream:
			if !ok {
				return
			}
			if text == last {
				continue
			}
			last = text
			d.apply(ctx, text)
		case <-ctx.Done():
			return
		}
	}
}

// apply brings the field from the previously typed text to next. Updates
// are dropped while no text field has focus.
func (d *Dictation) apply(ctx context.Context, next string) {
	if !d.editor.IsTextFieldFocused(ctx) {
		d.logger.Debug("No text field focused, skipping transcript update")
		return
	}

	d.mu.Lock()
	prev := d.typed
	d.mu.Unlock()

	want := []rune(next)
	keep := commonPrefixLen(prev, want)
	if n := len(prev) - keep; n > 0 {
		if err := d.editor.Delete(ctx, n); err != nil {
			d.logger.Warn("Failed to correct dictated text", zap.Int("count", n), zap.Error(err))
			return
		}
	}
	d.setTyped(want[:keep])
	if rest := want[keep:]; len(rest) > 0 {
		if err := d.editor.Type(ctx, string(rest)); err != nil {
			d.logger.Warn("Failed to type dictated text", zap.Error(err))
			return
		}
	}
	d.setTyped(want)
}

func (d *Dictation) setTyped(text []rune) {
	d.mu.Lock()
	d.typed = text
	d.mu.Unlock()
}

func commonPrefixLen(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
