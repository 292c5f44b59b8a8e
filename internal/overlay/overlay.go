// Package overlay is the debug overlay sink. The log-backed implementation
// records what a visual overlay would draw.
package overlay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/accessibility"
)

// LogOverlay logs element highlights, captions and the todo panel.
type LogOverlay struct {
	logger *zap.Logger

	mu       sync.Mutex
	elements []accessibility.DetectedElement
	caption  string
	todo     string
}

// NewLogOverlay creates a log-backed overlay.
func NewLogOverlay(logger *zap.Logger) *LogOverlay {
	return &LogOverlay{logger: logger.Named("overlay")}
}

// Update replaces the highlighted elements.
func (o *LogOverlay) Update(elements []accessibility.DetectedElement) {
	o.mu.Lock()
	o.elements = append(o.elements[:0:0], elements...)
	o.mu.Unlock()
	o.logger.Debug("Highlighting elements", zap.Int("count", len(elements)))
}

// Clear removes highlights and the todo panel.
func (o *LogOverlay) Clear() {
	o.mu.Lock()
	o.elements = nil
	o.todo = ""
	o.mu.Unlock()
	o.logger.Debug("Overlay cleared")
}

// ShowCaption displays a live caption.
func (o *LogOverlay) ShowCaption(text string) {
	o.mu.Lock()
	o.caption = text
	o.mu.Unlock()
	o.logger.Debug("Caption", zap.String("text", text))
}

// HideCaption removes the caption.
func (o *LogOverlay) HideCaption() {
	o.mu.Lock()
	o.caption = ""
	o.mu.Unlock()
}

// SetTodo shows the agent's current checklist.
func (o *LogOverlay) SetTodo(content string) {
	o.mu.Lock()
	o.todo = content
	o.mu.Unlock()
	o.logger.Debug("Todo updated", zap.Int("chars", len(content)))
}

// State returns what is currently displayed.
func (o *LogOverlay) State() (elements []accessibility.DetectedElement, caption, todo string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]accessibility.DetectedElement(nil), o.elements...), o.caption, o.todo
}
