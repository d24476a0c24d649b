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
	"fmt"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/storage/file"
	"github.com/jeremyhahn/go-passkey/pkg/storage/memory"
	"github.com/jeremyhahn/go-passkey/pkg/storage/redis"
	"github.com/jeremyhahn/go-passkey/pkg/storage/sql"
)

// NewBackend creates the user record backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		return memory.New(), nil

	case config.StorageFile:
		backend, err := file.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create file storage: %w", err)
		}
		return backend, nil

	case config.StorageRedis:
		backend, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis storage: %w", err)
		}
		return backend, nil

	case config.StorageSQL:
		backend, err := sql.New(cfg.SQL)
		if err != nil {
			return nil, fmt.Errorf("failed to create sql storage: %w", err)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// NewAuditSink creates the audit adapter selected by cfg. A disabled audit
// section yields a no-op sink.
func NewAuditSink(cfg config.AuditConfig) (audit.AuditAdapter, error) {
	if !cfg.Enabled {
		return audit.NewNoOpAuditAdapter(), nil
	}

	switch cfg.Sink {
	case config.AuditSinkMemory, "":
		return audit.NewMemoryAuditAdapter(cfg.MaxEvents), nil

	case config.AuditSinkKafka:
		sink, err := audit.NewKafkaAuditAdapter(audit.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka audit sink: %w", err)
		}
		return sink, nil

	default:
		return nil, fmt.Errorf("unsupported audit sink: %s", cfg.Sink)
	}
}
