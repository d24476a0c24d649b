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
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaAuditAdapter_LogEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "passkey-audit" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "user-1" {
			return fmt.Errorf("unexpected key %q", key)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event AuditEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.EventType != EventAuthenticationFinish {
			return fmt.Errorf("unexpected event type %q", event.EventType)
		}
		return nil
	})

	adapter := NewKafkaAuditAdapterWithProducer(producer, "passkey-audit")
	defer func() { require.NoError(t, adapter.Close()) }()

	event := &AuditEvent{
		EventType: EventAuthenticationFinish,
		Outcome:   OutcomeSuccess,
		Principal: &Principal{Type: "user", ID: "user-1"},
	}
	require.NoError(t, adapter.LogEvent(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestKafkaAuditAdapter_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	adapter := NewKafkaAuditAdapterWithProducer(producer, "passkey-audit")
	defer adapter.Close()

	err := adapter.LogEvent(context.Background(), &AuditEvent{EventType: EventCredentialRemove})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestKafkaAuditAdapter_NilEventAndQueries(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	adapter := NewKafkaAuditAdapterWithProducer(producer, "passkey-audit")
	defer adapter.Close()

	assert.Error(t, adapter.LogEvent(context.Background(), nil))

	_, err := adapter.GetEvents(context.Background(), nil)
	assert.ErrorIs(t, err, ErrQueryNotSupported)
}

func TestNewKafkaAuditAdapter_Validation(t *testing.T) {
	_, err := NewKafkaAuditAdapter(KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewKafkaAuditAdapter(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
