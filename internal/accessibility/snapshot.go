package accessibility

import (
	"context"
	"fmt"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is a recorded desktop: the running apps and their trees.
type Snapshot struct {
	Frontmost string        `json:"frontmost"`
	Trusted   *bool         `json:"trusted,omitempty"`
	Apps      []SnapshotApp `json:"apps"`
}

// SnapshotApp is one process in a Snapshot.
type SnapshotApp struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Regular bool   `json:"regular"`
	Self    bool   `json:"self,omitempty"`
	Root    *Node  `json:"root"`
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// StaticElement adapts a Node to the Element interface. Empty attributes are
// reported as missing, the way a live accessibility API would.
type StaticElement struct {
	node *Node
}

// NewStaticElement wraps a node.
func NewStaticElement(n *Node) *StaticElement { return &StaticElement{node: n} }

func (e *StaticElement) Attribute(_ context.Context, name Attr) (string, error) {
	var v string
	switch name {
	case AttrRole:
		v = e.node.Role
	case AttrTitle:
		v = e.node.Title
	case AttrValue:
		v = e.node.Value
	case AttrDescription:
		v = e.node.Description
	}
	if v == "" {
		return "", fmt.Errorf("%s: %w", name, ErrAttributeMissing)
	}
	return v, nil
}

func (e *StaticElement) Frame(context.Context) (Rect, error) {
	if e.node.Frame == nil {
		return Rect{}, ErrNoFrame
	}
	return *e.node.Frame, nil
}

func (e *StaticElement) Children(context.Context) ([]Element, error) {
	out := make([]Element, 0, len(e.node.Children))
	for _, c := range e.node.Children {
		out = append(out, NewStaticElement(c))
	}
	return out, nil
}

// SnapshotPlatform serves a recorded desktop. When backed by a file, the file
// is re-read on every query so an external process can change the screen
// between perception cycles.
type SnapshotPlatform struct {
	path string

	mu   sync.RWMutex
	snap *Snapshot
}

// NewSnapshotPlatform serves an in-memory snapshot.
func NewSnapshotPlatform(snap *Snapshot) *SnapshotPlatform {
	return &SnapshotPlatform{snap: snap}
}

// NewFileSnapshotPlatform serves the snapshot stored at path.
func NewFileSnapshotPlatform(path string) *SnapshotPlatform {
	return &SnapshotPlatform{path: path}
}

// Set replaces the in-memory snapshot.
func (p *SnapshotPlatform) Set(snap *Snapshot) {
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
}

func (p *SnapshotPlatform) load() (*Snapshot, error) {
	if p.path != "" {
		snap, err := LoadSnapshot(p.path)
		if err != nil {
			return nil, err
		}
		p.Set(snap)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap == nil {
		return &Snapshot{}, nil
	}
	return p.snap, nil
}

func (p *SnapshotPlatform) FrontmostApp(ctx context.Context) (*App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := p.load()
	if err != nil {
		return nil, err
	}
	apps := appsOf(snap)
	for i := range apps {
		if apps[i].Name == snap.Frontmost {
			return &apps[i], nil
		}
	}
	return nil, nil
}

func (p *SnapshotPlatform) RunningApps(ctx context.Context) ([]App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := p.load()
	if err != nil {
		return nil, err
	}
	return appsOf(snap), nil
}

func appsOf(snap *Snapshot) []App {
	apps := make([]App, 0, len(snap.Apps))
	for _, a := range snap.Apps {
		app := App{Name: a.Name, PID: a.PID, Regular: a.Regular, Self: a.Self}
		if a.Root != nil {
			app.Root = NewStaticElement(a.Root)
		}
		apps = append(apps, app)
	}
	return apps
}

// Trusted is true unless the snapshot explicitly says otherwise.
func (p *SnapshotPlatform) Trusted(context.Context) bool {
	snap, err := p.load()
	if err != nil {
		return false
	}
	return snap.Trusted == nil || *snap.Trusted
}
