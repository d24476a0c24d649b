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
	"fmt"
	"log/slog"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
)

// Reload applies the parts of cfg that can change without a restart.
// Currently only the log level is reloaded; listener, storage and relying
// party changes require a restart and are reported as warnings.
func (s *Server) Reload(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Logging.Level != s.config.Logging.Level {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		s.level.Set(lvl)
		s.logger.Info("Log level updated",
			logger.String("old_level", s.config.Logging.Level),
			logger.String("new_level", cfg.Logging.Level))
		s.config.Logging.Level = cfg.Logging.Level
	}

	if cfg.Logging.Format != s.config.Logging.Format {
		s.logger.Warn("Log format change requires a restart",
			logger.String("format", cfg.Logging.Format))
	}
	if cfg.Server.Addr() != s.config.Server.Addr() {
		s.logger.Warn("Listen address change requires a restart",
			logger.String("addr", cfg.Server.Addr()))
	}
	if cfg.Storage.Backend != s.config.Storage.Backend {
		s.logger.Warn("Storage backend change requires a restart",
			logger.String("backend", cfg.Storage.Backend))
	}

	return nil
}
