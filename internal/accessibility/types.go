// Package accessibility turns an OS accessibility tree into the indexed text
// view the agent reasons over, and resolves indices back to live elements.
package accessibility

import (
	"context"
	"errors"
)

var (
	// ErrStaleAnalysis is returned when an index is resolved against a
	// ScreenAnalysis that a newer perception cycle has replaced.
	ErrStaleAnalysis = errors.New("screen analysis is stale")
	// ErrIndexNotFound is returned when an index was never assigned.
	ErrIndexNotFound = errors.New("element index not found")
	// ErrAttributeMissing is returned by elements that do not expose an attribute.
	ErrAttributeMissing = errors.New("attribute missing")
	// ErrNoFrame is returned by elements without a screen rectangle.
	ErrNoFrame = errors.New("element has no frame")
)

// Attr names an accessibility attribute.
type Attr string

const (
	AttrRole        Attr = "AXRole"
	AttrTitle       Attr = "AXTitle"
	AttrValue       Attr = "AXValue"
	AttrDescription Attr = "AXDescription"
)

// Point is a screen coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a screen-space bounding rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Element is a live handle into the OS accessibility tree. Handles are only
// meaningful during the perception cycle that produced them.
type Element interface {
	Attribute(ctx context.Context, name Attr) (string, error)
	Frame(ctx context.Context) (Rect, error)
	Children(ctx context.Context) ([]Element, error)
}

// App describes a running process that exposes an accessibility tree.
type App struct {
	Name string
	PID  int
	// Regular is true for apps with a normal activation policy (dock apps).
	Regular bool
	// Self marks the agent's own process.
	Self bool
	Root Element
}

// Platform is the OS boundary the reader walks.
type Platform interface {
	// FrontmostApp returns nil without error when no app is active.
	FrontmostApp(ctx context.Context) (*App, error)
	RunningApps(ctx context.Context) ([]App, error)
}

// PermissionChecker reports whether the process may read and drive the UI.
type PermissionChecker interface {
	Trusted(ctx context.Context) bool
}
