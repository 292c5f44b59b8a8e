// Package terminal provides console-backed speech, question and transcript
// collaborators for running the agent without audio devices.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned once the input stream has ended.
	ErrClosed = errors.New("console input closed")
	// ErrAlreadyRecording is returned when a transcription is already active.
	ErrAlreadyRecording = errors.New("transcription already active")
)

// Console reads lines from one input and writes to one output. A single
// reader goroutine (Run) feeds every consumer.
type Console struct {
	logger *zap.Logger
	in     io.Reader
	name   string

	outMu sync.Mutex
	out   io.Writer

	lines  chan string
	closed chan struct{}
	once   sync.Once
}

// NewConsole creates a console. name prefixes spoken output.
func NewConsole(logger *zap.Logger, in io.Reader, out io.Writer, name string) *Console {
	return &Console{
		logger: logger.Named("terminal"),
		in:     in,
		out:    out,
		name:   name,
		lines:  make(chan string),
		closed: make(chan struct{}),
	}
}

// Run pumps input lines until EOF or ctx is done. A read blocked on the
// underlying reader only returns when that reader does.
func (c *Console) Run(ctx context.Context) error {
	defer c.once.Do(func() { close(c.closed) })
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read console: %w", err)
	}
	return nil
}

// Done is closed once Run has returned.
func (c *Console) Done() <-chan struct{} { return c.closed }

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// next waits for one input line.
func (c *Console) next(ctx context.Context) (string, error) {
	select {
	case line := <-c.lines:
		return line, nil
	case <-c.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Speaker prints utterances instead of synthesizing audio.
type Speaker struct {
	console *Console
}

// NewSpeaker creates a speaker on the console.
func NewSpeaker(c *Console) *Speaker { return &Speaker{console: c} }

// Speak prints text. It returns once the text is written.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.console.printf("%s: %s\n", s.console.name, text)
	return nil
}

// Stop has nothing to interrupt on a console.
func (s *Speaker) Stop() {}

// Asker prompts on the console and waits for one line.
type Asker struct {
	console *Console
}

// NewAsker creates an asker on the console.
func NewAsker(c *Console) *Asker { return &Asker{console: c} }

// Ask prints the question and returns the next typed line.
func (a *Asker) Ask(ctx context.Context, question string) (string, error) {
	a.console.printf("? %s\n> ", question)
	return a.console.next(ctx)
}

// Transcriber turns each typed line into one transcript update.
type Transcriber struct {
	console *Console

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTranscriber creates a transcriber on the console.
func NewTranscriber(c *Console) *Transcriber { return &Transcriber{console: c} }

// Start begins a transcription. The returned stream carries the latest full
// transcript and is closed by Stop, by ctx, or when input ends.
func (t *Transcriber) Start(ctx context.Context) (<-chan string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil, ErrAlreadyRecording
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	out := make(chan string, 1)
	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case line := <-t.console.lines:
				select {
				case out <- line:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.console.closed:
				return
			}
		}
	}()
	t.console.logger.Debug("Transcription started")
	return out, nil
}

// Stop ends the active transcription and waits for its goroutine. Safe to
// call when nothing is active.
func (t *Transcriber) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
