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

package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BackendFactory returns a fresh, empty backend for one subtest.
type BackendFactory func(t *testing.T) storage.Backend

// RunBackendSuite exercises the storage.Backend contract against the backends
// produced by newBackend.
func RunBackendSuite(t *testing.T, newBackend BackendFactory) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		values := map[string][]byte{
			"users/u1.json":   []byte(`{"id":"u1"}`),
			"usernames/alice": []byte("u1"),
			"binary":          {0x00, 0x01, 0xff},
			"empty":           {},
		}
		for k, v := range values {
			require.NoError(t, b.Put(ctx, k, v, nil))
		}
		for k, v := range values {
			got, err := b.Get(ctx, k)
			require.NoError(t, err, k)
			assert.Equal(t, len(v), len(got), k)
			if len(v) > 0 {
				assert.Equal(t, v, got, k)
			}
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		require.NoError(t, b.Put(ctx, "k", []byte("v1"), nil))
		require.NoError(t, b.Put(ctx, "k", []byte("v2"), nil))

		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := newBackend(t).Get(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		require.NoError(t, b.Put(ctx, "k", []byte("v"), nil))
		require.NoError(t, b.Delete(ctx, "k"))

		_, err := b.Get(ctx, "k")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, b.Delete(ctx, "k"), storage.ErrNotFound)
	})

	t.Run("Exists", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		ok, err := b.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.Put(ctx, "k", []byte("v"), nil))
		ok, err = b.Exists(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ListPrefix", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		for _, k := range []string{"users/b.json", "users/a.json", "usernames/alice", "other"} {
			require.NoError(t, b.Put(ctx, k, []byte("x"), nil))
		}

		keys, err := b.List(ctx, "users/")
		require.NoError(t, err)
		assert.Equal(t, []string{"users/a.json", "users/b.json"}, keys)

		all, err := b.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)

		none, err := b.List(ctx, "nothing/")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ValueIsolation", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		value := []byte("original")
		require.NoError(t, b.Put(ctx, "k", value, nil))
		value[0] = 'X'

		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), got)

		got[0] = 'Y'
		again, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), again)
	})

	t.Run("Concurrent", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("users/%02d.json", i)
				if err := b.Put(ctx, key, []byte(key), nil); err != nil {
					errs <- err
					return
				}
				if _, err := b.Get(ctx, key); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		keys, err := b.List(ctx, "users/")
		require.NoError(t, err)
		assert.Len(t, keys, 20)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		b := newBackend(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := b.Get(ctx, "k")
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
		assert.Error(t, b.Put(ctx, "k", []byte("v"), nil))
	})

	t.Run("Closed", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Close())

		ctx := context.Background()
		_, err := b.Get(ctx, "k")
		assert.Error(t, err)
		assert.Error(t, b.Put(ctx, "k", []byte("v"), nil))
		_, err = b.List(ctx, "")
		assert.Error(t, err)
	})
}
