package accessibility

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Node is an owned copy of one accessibility element. Unlike Element it holds
// no live handle and may outlive the perception cycle.
type Node struct {
	Role        string  `json:"role"`
	Title       string  `json:"title,omitempty"`
	Value       string  `json:"value,omitempty"`
	Description string  `json:"description,omitempty"`
	Frame       *Rect   `json:"frame,omitempty"`
	Children    []*Node `json:"children,omitempty"`
}

// FullScan copies the tree of every regular app except the agent itself,
// one root node per process. Apps are walked concurrently; the result keeps
// the platform's app order.
func (r *Reader) FullScan(ctx context.Context) ([]*Node, error) {
	apps, err := r.platform.RunningApps(ctx)
	if err != nil {
		return nil, err
	}
	targets := scannableApps(apps)
	roots := make([]*Node, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, app := range targets {
		g.Go(func() error {
			roots[i] = r.copyTree(gctx, newAppRoot(app), 0)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("Full scan complete", zap.Int("apps", len(roots)))
	return roots, nil
}

// copyTree replaces anything deeper than the cap with a MAX_DEPTH leaf.
func (r *Reader) copyTree(ctx context.Context, el Element, depth int) *Node {
	if depth > r.maxDepth {
		return &Node{Role: roleMaxDepth}
	}

	n := &Node{
		Role:        shortRole(attribute(ctx, el, AttrRole)),
		Title:       attribute(ctx, el, AttrTitle),
		Value:       attribute(ctx, el, AttrValue),
		Description: attribute(ctx, el, AttrDescription),
	}
	if frame, err := el.Frame(ctx); err == nil {
		n.Frame = &frame
	}
	if ctx.Err() != nil {
		return n
	}

	children, err := el.Children(ctx)
	if err != nil {
		return n
	}
	for _, child := range children {
		n.Children = append(n.Children, r.copyTree(ctx, child, depth+1))
	}
	return n
}
