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

// Package sql provides a storage.Backend backed by a relational database
// through gorm. SQLite (pure Go) and Microsoft SQL Server are supported.
package sql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

// Supported drivers.
const (
	DriverSQLite    = "sqlite"
	DriverSQLServer = "sqlserver"
)

// Config configures the database connection.
type Config struct {
	// Driver is DriverSQLite or DriverSQLServer.
	Driver string `yaml:"driver" json:"driver" mapstructure:"driver"`

	// DSN is the driver specific data source name.
	DSN string `yaml:"dsn" json:"-" mapstructure:"dsn"`

	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`

	// Debug logs every statement.
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// record is one key/value row.
type record struct {
	Key       string `gorm:"column:storage_key;primaryKey;size:512"`
	Value     []byte `gorm:"column:value"`
	UpdatedAt time.Time
}

func (record) TableName() string {
	return "passkey_kv"
}

// Storage implements storage.Backend over a gorm connection.
type Storage struct {
	db     *gorm.DB
	closed atomic.Bool
}

// New opens the database, applies the connection pool settings and migrates
// the key/value table.
func New(cfg Config) (*Storage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sql storage: dsn is required")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
		// a single connection serializes writers
		if cfg.MaxOpenConns == 0 {
			cfg.MaxOpenConns = 1
		}
	case DriverSQLServer:
		dialector = sqlserver.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("sql storage: unsupported driver %q", cfg.Driver)
	}

	level := gormlogger.Silent
	if cfg.Debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("sql storage: failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql storage: failed to retrieve database handle: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return NewWithDB(db)
}

// NewWithDB wraps an open gorm connection and migrates the key/value table.
func NewWithDB(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("sql storage: failed to migrate: %w", err)
	}
	return &Storage{db: db}, nil
}

// Get retrieves the value for the given key.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var rec record
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sql storage: failed to get key %q: %w", key, err)
	}
	if rec.Value == nil {
		return []byte{}, nil
	}
	return rec.Value, nil
}

// Put upserts the value for the given key. Options are ignored.
func (s *Storage) Put(ctx context.Context, key string, value []byte, _ *storage.Options) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if key == "" {
		return storage.ErrInvalidKey
	}

	rec := record{
		Key:       key,
		Value:     append([]byte{}, value...),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("sql storage: failed to put key %q: %w", key, err)
	}
	return nil
}

// Delete removes the key and its value from storage.
// Returns storage.ErrNotFound if the key does not exist.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&record{})
	if res.Error != nil {
		return fmt.Errorf("sql storage: failed to delete key %q: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all keys with the given prefix in sorted order.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var matched []string
	err := s.db.WithContext(ctx).
		Model(&record{}).
		Where(`storage_key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Pluck("storage_key", &matched).Error
	if err != nil {
		return nil, fmt.Errorf("sql storage: failed to list prefix %q: %w", prefix, err)
	}

	// LIKE is case-insensitive under the default collations
	keys := make([]string, 0, len(matched))
	for _, k := range matched {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists checks if a key exists in storage.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	var n int64
	err := s.db.WithContext(ctx).Model(&record{}).Where("storage_key = ?", key).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("sql storage: failed to check key %q: %w", key, err)
	}
	return n > 0, nil
}

// Ping reports whether the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool. Close is idempotent.
func (s *Storage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
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

// escapeLike escapes the LIKE metacharacters in s using backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `[`, `\[`)
	return r.Replace(s)
}
