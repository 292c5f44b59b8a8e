// Package apps resolves application names against the installed bundles and
// launches them.
package apps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ErrNotFound is returned when no installed app matches a name.
var ErrNotFound = errors.New("app not found")

// NotFoundError carries the name that failed to resolve. It matches
// ErrNotFound with errors.Is.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Could not find app named '%s'", e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Opener starts an application bundle.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// CommandOpener launches bundles with `open -a`.
type CommandOpener struct{}

func (CommandOpener) Open(ctx context.Context, path string) error {
	out, err := exec.CommandContext(ctx, "open", "-a", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("open -a %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Launcher matches names exactly, then case-insensitively, then by substring,
// over a cached scan of the install directories. The cache is built on first
// use and rebuilt once, lazily, on the first miss.
type Launcher struct {
	logger  *zap.Logger
	dirs    []string
	pattern string
	opener  Opener

	group singleflight.Group

	mu        sync.RWMutex
	index     map[string]string
	names     []string
	rescanned bool
}

// NewLauncher creates a launcher for the configured install directories.
func NewLauncher(logger *zap.Logger, cfg config.AppsConfig, opener Opener) *Launcher {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "*.app"
	}
	return &Launcher{
		logger:  logger.Named("apps"),
		dirs:    cfg.Dirs,
		pattern: pattern,
		opener:  opener,
	}
}

// Launch resolves name and opens the match. The returned status describes
// which rule matched.
func (l *Launcher) Launch(ctx context.Context, name string) (string, error) {
	if err := l.ensureIndex(ctx); err != nil {
		return "", err
	}

	match, status, ok := l.resolve(name)
	if !ok && l.claimRescan() {
		l.logger.Debug("App cache miss, rescanning", zap.String("name", name))
		if _, err := l.Refresh(ctx); err != nil {
			return "", err
		}
		match, status, ok = l.resolve(name)
	}
	if !ok {
		return "", &NotFoundError{Name: name}
	}

	if err := l.opener.Open(ctx, l.path(match)); err != nil {
		return "", fmt.Errorf("launch %s: %w", match, err)
	}
	l.logger.Info("Launched application", zap.String("app", match), zap.String("status", status))
	return status, nil
}

// Refresh rescans the install directories. Concurrent callers share one scan.
func (l *Launcher) Refresh(ctx context.Context) (int, error) {
	v, err, _ := l.group.Do("scan", func() (interface{}, error) {
		index, err := l.scan(ctx)
		if err != nil {
			return 0, err
		}
		names := make([]string, 0, len(index))
		for n := range index {
			names = append(names, n)
		}
		sort.Strings(names)

		l.mu.Lock()
		l.index = index
		l.names = names
		l.mu.Unlock()

		l.logger.Debug("Indexed applications", zap.Int("count", len(names)))
		return len(names), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Names lists the indexed application names in sorted order.
func (l *Launcher) Names(ctx context.Context) ([]string, error) {
	if err := l.ensureIndex(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out, nil
}

func (l *Launcher) ensureIndex(ctx context.Context) error {
	l.mu.RLock()
	built := l.index != nil
	l.mu.RUnlock()
	if built {
		return nil
	}
	_, err := l.Refresh(ctx)
	return err
}

func (l *Launcher) claimRescan() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rescanned {
		return false
	}
	l.rescanned = true
	return true
}

func (l *Launcher) resolve(name string) (match, status string, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, found := l.index[name]; found {
		return name, "Launched exact match: " + name, true
	}
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if cleaned == "" {
		return "", "", false
	}
	for _, n := range l.names {
		if strings.ToLower(n) == cleaned {
			return n, "Launched: " + n, true
		}
	}
	for _, n := range l.names {
		if strings.Contains(strings.ToLower(n), cleaned) {
			return n, "Launched partial match: " + n, true
		}
	}
	return "", "", false
}

func (l *Launcher) path(name string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index[name]
}

// scan globs every install directory. Missing or unreadable directories are
// skipped; later directories win on duplicate names.
func (l *Launcher) scan(ctx context.Context) (map[string]string, error) {
	index := make(map[string]string)
	for _, dir := range l.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		expanded, err := homedir.Expand(dir)
		if err != nil {
			l.logger.Warn("Skipping app directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		matches, err := doublestar.FilepathGlob(filepath.Join(expanded, l.pattern))
		if err != nil {
			l.logger.Warn("Bad app glob", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, m := range matches {
			base := filepath.Base(m)
			index[strings.TrimSuffix(base, filepath.Ext(base))] = m
		}
	}
	return index, nil
}
