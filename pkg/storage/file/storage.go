// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package file provides a file-based implementation of the storage.Backend
// interface. Each key is stored as one file below a root directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// Default file permissions (owner rw only)
	defaultPerms = 0600

	// Suffix of in-progress writes, never listed
	tempSuffix = ".tmp~"
)

// FileStorage is a file-based implementation of storage.Backend.
type FileStorage struct {
	mu      sync.RWMutex
	rootDir string
	closed  bool
}

// New creates a new FileStorage instance with the specified root directory.
// The root directory is created with 0700 permissions if it doesn't exist.
func New(rootDir string) (storage.Backend, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}

	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to resolve root directory: %w", err)
	}

	if err := os.MkdirAll(abs, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}

	return &FileStorage{
		rootDir: abs,
	}, nil
}

// Get retrieves the value for the given key.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, storage.ErrClosed
	}

	path, err := f.keyToPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Put stores the value for the given key. The write goes to a temporary file
// that is renamed into place so readers never observe a partial record.
func (f *FileStorage) Put(ctx context.Context, key string, value []byte, opts *storage.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}

	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerms); err != nil {
		return fmt.Errorf("file storage: failed to create directory for key %q: %w", key, err)
	}

	perms := fs.FileMode(defaultPerms)
	if opts != nil && opts.Permissions != 0 {
		perms = opts.Permissions
	}

	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, value, perms); err != nil {
		return fmt.Errorf("file storage: failed to write key %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file storage: failed to commit key %q: %w", key, err)
	}
	return nil
}

// Delete removes the key and its value from storage.
// Returns storage.ErrNotFound if the key does not exist.
func (f *FileStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return storage.ErrClosed
	}

	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file storage: failed to delete key %q: %w", key, err)
	}
	return nil
}

// List returns all keys with the given prefix in sorted order.
func (f *FileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, storage.ErrClosed
	}

	keys := make([]string, 0)
	err := filepath.WalkDir(f.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, tempSuffix) {
			return nil
		}

		rel, err := filepath.Rel(f.rootDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file storage: failed to list keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Exists checks if a key exists in storage.
func (f *FileStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return false, storage.ErrClosed
	}

	path, err := f.keyToPath(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("file storage: failed to check key %q: %w", key, err)
	}
	return true, nil
}

// Close marks the storage closed. Files are left on disk.
func (f *FileStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// keyToPath validates key and maps it below the root directory.
func (f *FileStorage) keyToPath(key string) (string, error) {
	if err := validateStorageKey(key); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidKey, err)
	}
	return filepath.Join(f.rootDir, filepath.FromSlash(key)), nil
}

// validateStorageKey allows path separators for organization but blocks
// traversal out of the root.
func validateStorageKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("key contains null byte")
	}
	if strings.HasSuffix(key, tempSuffix) {
		return fmt.Errorf("key uses reserved suffix")
	}
	if filepath.IsAbs(key) || strings.HasPrefix(key, "/") {
		return fmt.Errorf("key cannot be an absolute path")
	}

	for _, segment := range strings.Split(filepath.ToSlash(key), "/") {
		if segment == ".." {
			return fmt.Errorf("key contains path traversal attempt")
		}
	}
	if filepath.Clean(filepath.FromSlash(key)) == "." {
		return fmt.Errorf("key does not name a file")
	}
	return nil
}
