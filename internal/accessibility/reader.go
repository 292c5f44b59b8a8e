package accessibility

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

const (
	noActiveAppText = "No active application."
	noActiveAppName = "None"
	maxLabelRunes   = 50
	roleApplication = "Application"
	roleMaxDepth    = "MAX_DEPTH"
)

// interactiveRoles receive an index and can be targeted by tap.
var interactiveRoles = map[string]struct{}{
	"Button":      {},
	"RadioButton": {},
	"CheckBox":    {},
	"TextField":   {},
	"TextArea":    {},
	"Link":        {},
	"PopUpButton": {},
	"Slider":      {},
	"ComboBox":    {},
	"TabGroup":    {},
	"StaticText":  {},
	"Image":       {},
}

// filteredRoles are dropped with their whole subtree. Menus appear and vanish
// between cycles and would reshuffle every index after them.
var filteredRoles = map[string]struct{}{
	"MenuBar":  {},
	"Menu":     {},
	"MenuItem": {},
}

// Reader walks the accessibility tree of the foreground app (or of every
// regular app in full-scan mode) and produces ScreenAnalysis snapshots.
type Reader struct {
	logger      *zap.Logger
	platform    Platform
	maxDepth    int
	fullScan    bool
	concurrency int
	agentName   string

	mu         sync.Mutex
	generation uint64
	current    *ScreenAnalysis
}

// NewReader creates a reader over the given platform.
func NewReader(logger *zap.Logger, platform Platform, cfg config.PerceptionConfig, agentName string) *Reader {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 50
	}
	concurrency := cfg.ScanConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reader{
		logger:      logger.Named("accessibility"),
		platform:    platform,
		maxDepth:    maxDepth,
		fullScan:    cfg.FullScan,
		concurrency: concurrency,
		agentName:   agentName,
	}
}

// Analyze performs one perception cycle. The previous analysis is invalidated
// before the new one is returned. Platform failures other than cancellation
// degrade to the no-active-application sentinel.
func (r *Reader) Analyze(ctx context.Context) (*ScreenAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis := r.nextAnalysis()
	if r.fullScan {
		if err := r.renderAllApps(ctx, analysis); err != nil {
			return nil, err
		}
	} else if err := r.renderFrontmost(ctx, analysis); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.publish(analysis)

	r.logger.Debug("Perception cycle complete",
		zap.Uint64("generation", analysis.Generation),
		zap.String("app", analysis.AppName),
		zap.Int("indexed", analysis.Len()),
		zap.Int("chars", len(analysis.UIRepresentation)),
	)
	return analysis, nil
}

func (r *Reader) renderFrontmost(ctx context.Context, analysis *ScreenAnalysis) error {
	app, err := r.platform.FrontmostApp(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Could not resolve the frontmost application", zap.Error(err))
		app = nil
	}

	switch {
	case app == nil || app.Root == nil:
		analysis.UIRepresentation = noActiveAppText
		analysis.AppName = noActiveAppName
	case app.Self:
		analysis.UIRepresentation = fmt.Sprintf("[%s is active. Switch to another app.]", r.agentName)
		analysis.AppName = r.agentName
	default:
		w := newWalker(ctx, r.maxDepth, analysis)
		w.walk(app.Root, 0, 0)
		analysis.UIRepresentation = w.String()
		analysis.AppName = app.Name
	}
	return nil
}

func (r *Reader) renderAllApps(ctx context.Context, analysis *ScreenAnalysis) error {
	apps, err := r.platform.RunningApps(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Could not enumerate running applications", zap.Error(err))
	}

	// Walk sequentially so indices are assigned in a stable order.
	w := newWalker(ctx, r.maxDepth, analysis)
	for _, app := range scannableApps(apps) {
		w.walk(newAppRoot(app), 0, 0)
	}
	analysis.UIRepresentation = w.String()
	analysis.AppName = "All Applications"
	if analysis.UIRepresentation == "" {
		analysis.UIRepresentation = noActiveAppText
		analysis.AppName = noActiveAppName
	}
	return nil
}

func (r *Reader) nextAnalysis() *ScreenAnalysis {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	return newScreenAnalysis(r.generation)
}

// publish swaps in the new analysis and expires the previous one.
func (r *Reader) publish(analysis *ScreenAnalysis) {
	r.mu.Lock()
	prev := r.current
	r.current = analysis
	r.mu.Unlock()
	if prev != nil && prev != analysis {
		prev.invalidate()
	}
}

// walker renders one tree into text while filling the analysis index.
type walker struct {
	ctx      context.Context
	maxDepth int
	analysis *ScreenAnalysis
	counter  int
	b        strings.Builder
}

func newWalker(ctx context.Context, maxDepth int, analysis *ScreenAnalysis) *walker {
	return &walker{ctx: ctx, maxDepth: maxDepth, analysis: analysis}
}

func (w *walker) String() string { return w.b.String() }

// walk is a pre-order traversal. depth counts every recursion level and is
// capped; indent only grows under rendered nodes.
func (w *walker) walk(el Element, depth, indent int) {
	if depth > w.maxDepth || w.ctx.Err() != nil {
		return
	}

	role := shortRole(attribute(w.ctx, el, AttrRole))
	if _, skip := filteredRoles[role]; skip {
		return
	}

	text := visibleText(w.ctx, el)
	_, interactive := interactiveRoles[role]
	important := text != "" || interactive

	if important {
		renderedRole := role
		if renderedRole == "" {
			renderedRole = "Unknown"
		}
		w.b.WriteString(strings.Repeat("\t", indent))
		if interactive {
			w.counter++
			idx := w.counter
			w.analysis.index[idx] = el
			fmt.Fprintf(&w.b, "*[%d]<%s>%s</%s>\n", idx, renderedRole, text, renderedRole)
			if frame, err := el.Frame(w.ctx); err == nil {
				w.analysis.Elements = append(w.analysis.Elements, DetectedElement{
					Index: idx,
					Role:  renderedRole,
					Label: text,
					Rect:  frame,
				})
			}
		} else {
			fmt.Fprintf(&w.b, "%s <%s>\n", text, renderedRole)
		}
	}

	children, err := el.Children(w.ctx)
	if err != nil {
		return
	}
	childIndent := indent
	if important {
		childIndent++
	}
	for _, child := range children {
		w.walk(child, depth+1, childIndent)
	}
}

// attribute degrades every failure to an empty string.
func attribute(ctx context.Context, el Element, name Attr) string {
	v, err := el.Attribute(ctx, name)
	if err != nil {
		return ""
	}
	return v
}

func shortRole(role string) string {
	return strings.TrimPrefix(role, "AX")
}

// visibleText picks title, then value, then description, flattened and cut
// to a fixed number of characters.
func visibleText(ctx context.Context, el Element) string {
	text := attribute(ctx, el, AttrTitle)
	if text == "" {
		text = attribute(ctx, el, AttrValue)
	}
	if text == "" {
		text = attribute(ctx, el, AttrDescription)
	}
	text = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text))
	if runes := []rune(text); len(runes) > maxLabelRunes {
		text = string(runes[:maxLabelRunes])
	}
	return text
}

func scannableApps(apps []App) []App {
	out := make([]App, 0, len(apps))
	for _, app := range apps {
		if app.Regular && !app.Self && app.Root != nil {
			out = append(out, app)
		}
	}
	return out
}

// appRoot overrides the root element of an app so each process renders as a
// labelled Application node.
type appRoot struct {
	app App
}

func newAppRoot(app App) Element { return appRoot{app: app} }

func (a appRoot) Attribute(ctx context.Context, name Attr) (string, error) {
	switch name {
	case AttrRole:
		return "AX" + roleApplication, nil
	case AttrTitle:
		return a.app.Name, nil
	case AttrValue:
		return fmt.Sprintf("PID: %d", a.app.PID), nil
	default:
		return a.app.Root.Attribute(ctx, name)
	}
}

func (a appRoot) Frame(ctx context.Context) (Rect, error) { return a.app.Root.Frame(ctx) }

func (a appRoot) Children(ctx context.Context) ([]Element, error) {
	return a.app.Root.Children(ctx)
}
