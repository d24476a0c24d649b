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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/user"
)

// Components are the long-lived objects shared by the HTTP server and the
// offline maintenance commands.
type Components struct {
	Backend       storage.Backend
	Users         *user.Store
	Issuer        *passkey.JWTIssuer
	Authenticator auth.Authenticator
	Audit         audit.AuditAdapter
	Service       *passkey.Service
}

// NewComponents wires storage, the user store and the passkey service from
// a validated configuration. The caller owns the result and must Close it.
func NewComponents(ctx context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	if log == nil {
		log = logger.Nop()
	}

	backend, err := NewBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	c := &Components{Backend: backend}

	c.Users, err = user.NewStore(backend)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}

	ceremony, err := passkey.NewWebAuthnCeremony(cfg.RelyingParty())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create webauthn ceremony: %w", err)
	}

	c.Issuer, err = cfg.Auth.CreateIssuer()
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Authenticator, err = cfg.Auth.CreateAuthenticator(c.Issuer)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Audit, err = NewAuditSink(cfg.Audit)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Service, err = passkey.NewService(passkey.ServiceParams{
		Ceremony:      ceremony,
		UserStore:     c.Users,
		Tokens:        c.Issuer,
		DefaultOrigin: cfg.DefaultOrigin(),
		Logger:        log.With(logger.String("component", "passkey")),
		Audit:         c.Audit,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create passkey service: %w", err)
	}

	return c, nil
}

// Close releases the audit sink and the user store, which closes the
// storage backend.
func (c *Components) Close() error {
	var errs []error
	if c.Audit != nil {
		if err := c.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if c.Users != nil {
		if err := c.Users.Close(); err != nil {
			errs = append(errs, fmt.Errorf("user store: %w", err))
		}
	} else if c.Backend != nil {
		if err := c.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
