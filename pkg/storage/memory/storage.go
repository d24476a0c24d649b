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

// Package memory provides an in-memory implementation of the storage.Backend interface.
// Values are copied on the way in and out so callers cannot alias stored data.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

// Storage is an in-memory implementation of storage.Backend.
type Storage struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// New creates a new in-memory storage backend.
func New() storage.Backend {
	return &Storage{
		data: make(map[string][]byte),
	}
}

// Get retrieves the value for the given key.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	value, exists := s.data[key]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return clone(value), nil
}

// Put stores the value for the given key. Options are ignored.
func (s *Storage) Put(ctx context.Context, key string, value []byte, _ *storage.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return storage.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	s.data[key] = clone(value)
	return nil
}

// Delete removes the key and its value from storage.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, key)
	return nil
}

// List returns all keys with the given prefix in sorted order.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	keys := make([]string, 0)
	for key := range s.data {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Exists checks if a key exists in storage.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, storage.ErrClosed
	}

	_, exists := s.data[key]
	return exists, nil
}

// Close marks the storage closed and drops its contents. After Close, all
// other operations return storage.ErrClosed. Close is idempotent.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = nil
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
