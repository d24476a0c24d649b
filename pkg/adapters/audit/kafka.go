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
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// KafkaConfig configures the Kafka audit sink.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaAuditAdapter publishes audit events to Kafka. Events are keyed by
// principal id so one user's events stay ordered within a partition.
type KafkaAuditAdapter struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaAuditAdapter connects a synchronous producer to the brokers.
func NewKafkaAuditAdapter(cfg KafkaConfig) (*KafkaAuditAdapter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Retry.Max = 3
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaAuditAdapterWithProducer(producer, cfg.Topic), nil
}

// NewKafkaAuditAdapterWithProducer wraps an existing producer.
func NewKafkaAuditAdapterWithProducer(producer sarama.SyncProducer, topic string) *KafkaAuditAdapter {
	return &KafkaAuditAdapter{producer: producer, topic: topic}
}

// LogEvent publishes event as JSON.
func (k *KafkaAuditAdapter) LogEvent(ctx context.Context, event *AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	key := event.ID
	if event.Principal != nil && event.Principal.ID != "" {
		key = event.Principal.ID
	}

	msg := &sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
		},
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// GetEvents is not supported by the Kafka sink.
func (k *KafkaAuditAdapter) GetEvents(ctx context.Context, query *EventQuery) ([]*AuditEvent, error) {
	return nil, ErrQueryNotSupported
}

// Close closes the producer.
func (k *KafkaAuditAdapter) Close() error {
	return k.producer.Close()
}
