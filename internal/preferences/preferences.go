// Package preferences holds the cross-task notes about the user that are
// injected into every agent prompt.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

const (
	userLine       = "User: Computer Owner"
	notLearnedYet  = "No user preferences learned yet. As you complete tasks, you will learn the user's habits and preferences."
	defaultMaxSize = 8000
)

// Store reads the preferences file. The prompt side is read-only; the file
// is maintained by whatever learns preferences.
type Store struct {
	logger  *zap.Logger
	enabled bool
	path    string
	maxSize int

	mu      sync.RWMutex
	content string
	loaded  bool
}

// New creates a store for the configured file. The file need not exist.
func New(logger *zap.Logger, cfg config.PreferencesConfig) (*Store, error) {
	path, err := homedir.Expand(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expand preferences path: %w", err)
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Store{
		logger:  logger.Named("preferences"),
		enabled: cfg.Enabled,
		path:    filepath.Clean(path),
		maxSize: maxSize,
	}, nil
}

// Path is the expanded file location.
func (s *Store) Path() string { return s.path }

// Load re-reads the file, truncating it to the size limit. A missing file
// loads as empty.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read preferences: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if runes := []rune(content); len(runes) > s.maxSize {
		s.logger.Warn("Preferences file too large, truncating",
			zap.Int("chars", len(runes)),
			zap.Int("limit", s.maxSize),
		)
		content = string(runes[:s.maxSize])
	}

	s.mu.Lock()
	s.content = content
	s.loaded = true
	s.mu.Unlock()
	return content, nil
}

// Content returns the cached preferences, loading them on first use.
func (s *Store) Content() string {
	s.mu.RLock()
	content, loaded := s.content, s.loaded
	s.mu.RUnlock()
	if loaded {
		return content
	}
	content, err := s.Load()
	if err != nil {
		s.logger.Warn("Could not load preferences", zap.Error(err))
		return ""
	}
	return content
}

// UserInfoSection renders the user block of the system prompt.
func (s *Store) UserInfoSection() string {
	if !s.enabled {
		return userLine
	}
	prefs := s.Content()
	if prefs == "" {
		prefs = notLearnedYet
	}
	return userLine + "\n\n<user_preferences>\n" + prefs + "\n</user_preferences>"
}

// Clear deletes the preferences file.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear preferences: %w", err)
	}
	s.mu.Lock()
	s.content = ""
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Watch reloads the cache whenever the file changes, until ctx is done.
// The parent directory is watched so the file may be created, replaced or
// removed at any time.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if _, err := s.Load(); err != nil {
		s.logger.Warn("Initial preferences load failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			content, err := s.Load()
			if err != nil {
				s.logger.Warn("Preferences reload failed", zap.Error(err))
				continue
			}
			s.logger.Debug("Preferences reloaded", zap.Int("chars", len(content)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Preferences watcher error", zap.Error(err))
		}
	}
}
