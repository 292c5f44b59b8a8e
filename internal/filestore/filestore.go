// Package filestore is the per-task scratch space the agent reads and writes
// through its file actions.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/mitchellh/go-homedir"
	"github.com/moby/sys/atomicwriter"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// TodoFile is the checklist the agent keeps for multi-step tasks.
const TodoFile = "todo.md"

// resetFiles are wiped at the start of every task.
var resetFiles = []string{TodoFile, "results.md", "memory.txt"}

// ErrInvalidName is returned for empty or directory-like file names.
var ErrInvalidName = errors.New("invalid file name")

// Store is a flat key-value-by-filename store rooted in one directory.
type Store struct {
	logger *zap.Logger
	root   string
}

// New creates the store, expanding ~ and creating the root directory.
func New(logger *zap.Logger, cfg config.FilesConfig) (*Store, error) {
	root, err := homedir.Expand(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("expand files root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create files root %s: %w", root, err)
	}
	return &Store{logger: logger.Named("filestore"), root: root}, nil
}

// Root is the absolute directory backing the store.
func (s *Store) Root() string { return s.root }

// Reset removes the per-task files. Missing files are not an error.
func (s *Store) Reset() error {
	var errs []error
	for _, name := range resetFiles {
		if err := os.Remove(filepath.Join(s.root, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	s.logger.Debug("Task files wiped", zap.String("root", s.root))
	return errors.Join(errs...)
}

// Read returns the contents of a file.
func (s *Store) Read(name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// Write replaces a file atomically.
func (s *Store) Write(name, content string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := atomicwriter.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Append adds content on a new line, creating the file when absent.
func (s *Store) Append(name, content string) error {
	existing, err := s.Read(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s.Write(name, content)
	case err != nil:
		return err
	}
	return s.Write(name, existing+"\n"+content)
}

// path resolves name inside the root; names cannot escape it.
func (s *Store) path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasSuffix(name, "/") || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p, err := securejoin.SecureJoin(s.root, name)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
	}
	if p == s.root {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return p, nil
}
