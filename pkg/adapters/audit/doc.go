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

// Package audit records passkey lifecycle events.
//
// Every registration, authentication, credential removal and repair produces
// an AuditEvent. Two sinks are provided:
//
//   - MemoryAuditAdapter keeps events in process and supports queries. It is
//     used by tests and single-node development servers.
//   - KafkaAuditAdapter publishes each event as JSON to a Kafka topic through
//     a sarama SyncProducer. It is write-only.
//
// Basic usage:
//
//	sink := audit.NewMemoryAuditAdapter()
//	_ = sink.LogEvent(ctx, &audit.AuditEvent{
//	    EventType: audit.EventAuthenticationFinish,
//	    Outcome:   audit.OutcomeSuccess,
//	    Principal: &audit.Principal{Type: "user", ID: userID},
//	})
//
//	events, _ := sink.GetEvents(ctx, &audit.EventQuery{
//	    EventTypes: []audit.EventType{audit.EventAuthenticationFinish},
//	})
//
// The sink is chosen by the audit section of the server configuration.
package audit
