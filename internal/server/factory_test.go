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

package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/storage/redis"
	"github.com/jeremyhahn/go-passkey/pkg/storage/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "default is memory", cfg: config.StorageConfig{}},
		{name: "memory", cfg: config.StorageConfig{Backend: config.StorageMemory}},
		{name: "file", cfg: config.StorageConfig{Backend: config.StorageFile, Path: filepath.Join(dir, "users")}},
		{name: "redis", cfg: config.StorageConfig{Backend: config.StorageRedis, Redis: redis.Config{Addr: mr.Addr()}}},
		{name: "sqlite", cfg: config.StorageConfig{Backend: config.StorageSQL, SQL: sql.Config{
			Driver: sql.DriverSQLite,
			DSN:    filepath.Join(dir, "passkey.db"),
		}}},
		{name: "redis without addr", cfg: config.StorageConfig{Backend: config.StorageRedis}, wantErr: true},
		{name: "sql without dsn", cfg: config.StorageConfig{Backend: config.StorageSQL}, wantErr: true},
		{name: "unknown", cfg: config.StorageConfig{Backend: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend, err := NewBackend(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer backend.Close()

			require.NoError(t, backend.Put(ctx, "users/probe", []byte("{}"), storage.DefaultOptions()))
			data, err := backend.Get(ctx, "users/probe")
			require.NoError(t, err)
			assert.Equal(t, []byte("{}"), data)
		})
	}
}

func TestNewAuditSink(t *testing.T) {
	sink, err := NewAuditSink(config.AuditConfig{})
	require.NoError(t, err)
	assert.IsType(t, &audit.NoOpAuditAdapter{}, sink)

	sink, err = NewAuditSink(config.AuditConfig{Enabled: true, Sink: config.AuditSinkMemory, MaxEvents: 5})
	require.NoError(t, err)
	assert.IsType(t, &audit.MemoryAuditAdapter{}, sink)

	_, err = NewAuditSink(config.AuditConfig{Enabled: true, Sink: config.AuditSinkKafka})
	assert.Error(t, err)

	_, err = NewAuditSink(config.AuditConfig{Enabled: true, Sink: "syslog"})
	assert.Error(t, err)
}
