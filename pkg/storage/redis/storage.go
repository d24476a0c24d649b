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

// Package redis provides a storage.Backend backed by a Redis server. Keys
// are namespaced with a configurable prefix so several deployments can share
// one database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

// DefaultPrefix namespaces every key written by the backend.
const DefaultPrefix = "passkey:"

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// Config configures the Redis connection.
type Config struct {
	Addr     string `yaml:"addr" json:"addr" mapstructure:"addr"`
	Password string `yaml:"password" json:"-" mapstructure:"password"`
	DB       int    `yaml:"db" json:"db" mapstructure:"db"`

	// Prefix is prepended to every key. Defaults to DefaultPrefix.
	Prefix string `yaml:"prefix" json:"prefix" mapstructure:"prefix"`
}

// Storage implements storage.Backend on top of a go-redis client.
type Storage struct {
	client goredis.UniversalClient
	prefix string
	closed atomic.Bool
}

// New connects to the configured server and verifies it with PING.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis storage: address is required")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis storage: failed to connect to %s: %w", cfg.Addr, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client. The backend takes ownership of the
// client and closes it on Close.
func NewWithClient(client goredis.UniversalClient, prefix string) *Storage {
	return &Storage{
		client: client,
		prefix: prefix,
	}
}

// Get retrieves the value for the given key.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, s.wrap("get", key, err)
	}
	return value, nil
}

// Put stores the value for the given key without expiry. Options are ignored.
func (s *Storage) Put(ctx context.Context, key string, value []byte, _ *storage.Options) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if key == "" {
		return storage.ErrInvalidKey
	}

	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return s.wrap("put", key, err)
	}
	return nil
}

// Delete removes the key and its value from storage.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	n, err := s.client.Del(ctx, s.prefix+key).Result()
	if err != nil {
		return s.wrap("delete", key, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all keys with the given prefix in sorted order. Keys are
// gathered with SCAN so large keyspaces do not block the server.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	match := escapeGlob(s.prefix+prefix) + "*"
	keys := make([]string, 0)
	seen := make(map[string]struct{})

	iter := s.client.Scan(ctx, 0, match, scanBatch).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.prefix)
		// SCAN may return a key more than once
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, s.wrap("list", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Exists checks if a key exists in storage.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, s.wrap("exists", key, err)
	}
	return n > 0, nil
}

// Ping reports whether the server is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client. Close is idempotent.
func (s *Storage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

func (s *Storage) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}

func (s *Storage) wrap(op, key string, err error) error {
	if errors.Is(err, goredis.ErrClosed) {
		return storage.ErrClosed
	}
	return fmt.Errorf("redis storage: failed to %s key %q: %w", op, key, err)
}

// escapeGlob escapes the SCAN MATCH metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
