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
	"errors"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	// Ceremony events
	EventRegistrationBegin    EventType = "passkey.registration.begin"
	EventRegistrationFinish   EventType = "passkey.registration.finish"
	EventAuthenticationBegin  EventType = "passkey.authentication.begin"
	EventAuthenticationFinish EventType = "passkey.authentication.finish"

	// Credential lifecycle events
	EventCredentialRemove EventType = "passkey.credential.remove"
	EventCredentialRepair EventType = "passkey.credential.repair"

	// Administrative events
	EventBulkRepair EventType = "admin.bulk_repair"

	// System events
	EventSystemStart EventType = "system.start"
	EventSystemStop  EventType = "system.stop"
)

// EventSeverity indicates the importance level of an audit event
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarn     EventSeverity = "warn"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// EventOutcome indicates the result of an operation
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
	OutcomeDenied  EventOutcome = "denied"
)

// ErrQueryNotSupported is returned by write-only sinks.
var ErrQueryNotSupported = errors.New("audit: sink does not support queries")

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Severity  EventSeverity `json:"severity"`
	Outcome   EventOutcome  `json:"outcome"`

	// Principal is the user the event concerns
	Principal *Principal `json:"principal,omitempty"`

	// Resource is the credential touched, when there is one
	Resource *Resource `json:"resource,omitempty"`

	// Result holds the error kind or a short summary
	Result string `json:"result,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// RequestID correlates this event with a request
	RequestID string `json:"request_id,omitempty"`

	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Principal represents the identity an event concerns
type Principal struct {
	// Type is "user" or "system"
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Resource represents the target of an action
type Resource struct {
	// Type is typically "credential"
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AuditAdapter records passkey audit events.
//
// Implementations must be safe for concurrent use. Sinks that only ship
// events elsewhere return ErrQueryNotSupported from GetEvents.
type AuditAdapter interface {
	// LogEvent records an audit event, assigning ID and Timestamp when unset
	LogEvent(ctx context.Context, event *AuditEvent) error

	// GetEvents retrieves audit events based on query parameters
	GetEvents(ctx context.Context, query *EventQuery) ([]*AuditEvent, error)

	// Close releases resources held by the sink
	Close() error
}

// EventQuery provides parameters for querying audit events
type EventQuery struct {
	EventTypes  []EventType
	Outcomes    []EventOutcome
	PrincipalID string
	StartTime   *time.Time
	EndTime     *time.Time

	// Limit limits the number of results
	Limit int

	// Offset skips the first N results
	Offset int
}

// Matches reports whether event satisfies every filter set on q.
func (q *EventQuery) Matches(event *AuditEvent) bool {
	if len(q.EventTypes) > 0 && !contains(q.EventTypes, event.EventType) {
		return false
	}
	if len(q.Outcomes) > 0 && !contains(q.Outcomes, event.Outcome) {
		return false
	}
	if q.PrincipalID != "" && (event.Principal == nil || event.Principal.ID != q.PrincipalID) {
		return false
	}
	if q.StartTime != nil && event.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && event.Timestamp.After(*q.EndTime) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
