package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-pkgz/fileutils"
)

// File keeps each session in its own json file under a directory, readable by the owner only.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile makes a file store, the directory is created if missing.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("session directory is not set")
	}
	if !fileutils.IsDir(dir) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("can't create session directory %s: %w", dir, err)
		}
		log.Printf("[DEBUG] created session directory %s", dir)
	}
	return &File{dir: dir}, nil
}

// Get reads the session file.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fname := f.path(key)
	if !fileutils.IsFile(fname) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(fname) // nolint gosec
	if err != nil {
		return nil, fmt.Errorf("can't read session file %s: %w", fname, err)
	}
	return data, nil
}

// Set writes the session to a temp file and moves it in place, so readers never see a partial file.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := fileutils.TempFileName(f.dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("can't make temp file name: %w", err)
	}
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("can't write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("can't move session file in place: %w", err)
	}
	return nil
}

// Delete removes the session file.
func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("can't remove session file: %w", err)
	}
	return nil
}

func (f *File) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(f.dir, safe+".json")
}
