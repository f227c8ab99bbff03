// Package cache is the local persisted key/value state, partitioned into
// namespaces that can be cleared independently.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// PackageNamespace is where package downloads used to be cached.
// Anything left there is stale and gets cleared at startup.
const PackageNamespace = "dr.pkg"

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("cache: key not found")

// FileStore keeps one directory per namespace under a root directory.
type FileStore struct {
	root string
	mu   sync.Mutex
}

func NewFileStore(root string) *FileStore { return &FileStore{root: root} }

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) nsDir(namespace string) (string, error) {
	if namespace == "" || namespace == "." || namespace == ".." {
		return "", fmt.Errorf("invalid cache namespace %q", namespace)
	}
	return filepath.Join(s.root, url.PathEscape(namespace)), nil
}

func (s *FileStore) entryPath(namespace, key string) (string, error) {
	dir, err := s.nsDir(namespace)
	if err != nil {
		return "", err
	}
	if key == "" || key == "." || key == ".." {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(dir, url.PathEscape(key)), nil
}

// Set writes value under namespace/key, replacing any previous value.
func (s *FileStore) Set(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.entryPath(namespace, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create namespace directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *FileStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.entryPath(namespace, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Keys lists the keys of a namespace in sorted order.
func (s *FileStore) Keys(_ context.Context, namespace string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.nsDir(namespace)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		k, err := url.PathUnescape(e.Name())
		if err != nil {
			continue // not written by us
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every entry of the namespace. Other namespaces are untouched.
func (s *FileStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.nsDir(namespace)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", namespace, err)
	}
	return nil
}
