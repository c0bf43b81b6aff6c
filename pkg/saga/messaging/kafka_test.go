// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

func TestKafkaGatewayConfigValidate(t *testing.T) {
	err := (&KafkaGatewayConfig{}).Validate()
	assert.Error(t, err)

	_, err = NewKafkaGateway(nil)
	assert.Error(t, err)

	gateway, err := NewKafkaGateway(&KafkaGatewayConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	defer gateway.Close()

	assert.Equal(t, "saga.commands.account-service", gateway.CommandTopic("account-service"))
}

func TestKafkaGatewayTopicPrefix(t *testing.T) {
	gateway, err := NewKafkaGateway(&KafkaGatewayConfig{
		Brokers:     []string{"localhost:9092"},
		TopicPrefix: "banking",
	})
	require.NoError(t, err)
	defer gateway.Close()

	assert.Equal(t, "banking.commands.user-service", gateway.CommandTopic("user-service"))
	assert.Equal(t, "banking.events", EventTopic("banking"))
	assert.Equal(t, "saga.events", EventTopic(""))
}

func TestEncodeCommandRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cmd := &saga.Command{
		CommandID:   "cmd-1",
		SagaID:      "saga-1",
		StepName:    "open-account",
		Type:        "OpenAccount",
		Destination: "account-service",
		Timestamp:   now,
		Payload:     json.RawMessage(`{"user_id":"u1"}`),
	}

	value, err := encodeCommand(cmd)
	require.NoError(t, err)

	var decoded saga.Command
	require.NoError(t, json.Unmarshal(value, &decoded))
	assert.Equal(t, *cmd, decoded)
}

func TestDecodeEvent(t *testing.T) {
	value := []byte(`{
		"event_id": "event-1",
		"saga_id": "saga-1",
		"step_name": "open-account",
		"success": false,
		"error_message": "account limit reached"
	}`)

	event, err := decodeEvent(value)
	require.NoError(t, err)
	assert.Equal(t, "event-1", event.EventID)
	assert.Equal(t, "saga-1", event.SagaID)
	assert.False(t, event.Success)
	assert.Equal(t, "account limit reached", event.ErrorMessage)
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{"not json", []byte(`{{`)},
		{"missing event id", []byte(`{"saga_id":"saga-1"}`)},
		{"missing saga id", []byte(`{"event_id":"event-1"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEvent(tt.value)
			assert.Error(t, err)
		})
	}
}

func TestKafkaEventConsumerConfigValidate(t *testing.T) {
	_, err := NewKafkaEventConsumer(nil, nil)
	assert.Error(t, err)

	_, err = NewKafkaEventConsumer(&KafkaEventConsumerConfig{}, &collectingSink{})
	assert.Error(t, err)
}
