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

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAuditAdapter implements AuditAdapter with in-memory storage.
//
// Note: All events are stored in memory and will be lost on process restart.
type MemoryAuditAdapter struct {
	mu     sync.RWMutex
	events []*AuditEvent
	max    int
}

// NewMemoryAuditAdapter creates a new in-memory audit adapter. When maxEvents
// is positive the oldest events are dropped past that many.
func NewMemoryAuditAdapter(maxEvents ...int) *MemoryAuditAdapter {
	m := &MemoryAuditAdapter{
		events: make([]*AuditEvent, 0, 256),
	}
	if len(maxEvents) > 0 && maxEvents[0] > 0 {
		m.max = maxEvents[0]
	}
	return m
}

// LogEvent records an audit event in memory
func (m *MemoryAuditAdapter) LogEvent(ctx context.Context, event *AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	if m.max > 0 && len(m.events) > m.max {
		m.events = m.events[len(m.events)-m.max:]
	}
	return nil
}

// GetEvents returns matching events, newest first.
func (m *MemoryAuditAdapter) GetEvents(ctx context.Context, query *EventQuery) ([]*AuditEvent, error) {
	if query == nil {
		query = &EventQuery{}
	}

	m.mu.RLock()
	results := make([]*AuditEvent, 0, len(m.events))
	for _, event := range m.events {
		if query.Matches(event) {
			results = append(results, event)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	if query.Offset > 0 {
		if query.Offset >= len(results) {
			return []*AuditEvent{}, nil
		}
		results = results[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results, nil
}

// Len returns the number of stored events.
func (m *MemoryAuditAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Close discards all events.
func (m *MemoryAuditAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	return nil
}
