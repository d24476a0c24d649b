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

package audit

import "context"

// NoOpAuditAdapter discards every event.
type NoOpAuditAdapter struct{}

// NewNoOpAuditAdapter returns an adapter that records nothing.
func NewNoOpAuditAdapter() *NoOpAuditAdapter {
	return &NoOpAuditAdapter{}
}

func (NoOpAuditAdapter) LogEvent(context.Context, *AuditEvent) error { return nil }

func (NoOpAuditAdapter) GetEvents(context.Context, *EventQuery) ([]*AuditEvent, error) {
	return []*AuditEvent{}, nil
}

func (NoOpAuditAdapter) Close() error { return nil }
