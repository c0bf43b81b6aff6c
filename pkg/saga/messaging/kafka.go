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
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

// KafkaGatewayConfig configures the Kafka participant gateway.
type KafkaGatewayConfig struct {
	// Brokers lists the Kafka bootstrap addresses.
	Brokers []string

	// TopicPrefix namespaces command topics; a command for destination
	// "account-service" goes to "<prefix>.commands.account-service".
	// Defaults to "saga".
	TopicPrefix string

	// WriteTimeout bounds a single produce call. Defaults to 10s.
	WriteTimeout time.Duration

	// RequiredAcks controls produce durability. Defaults to RequireAll.
	RequiredAcks kafka.RequiredAcks
}

// Validate checks the configuration.
func (c *KafkaGatewayConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka gateway: at least one broker is required")
	}
	return nil
}

func (c *KafkaGatewayConfig) setDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "saga"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = kafka.RequireAll
	}
}

// KafkaGateway is a saga.ParticipantGateway producing commands to per-
// destination Kafka topics. Messages are keyed by saga id so all commands of
// one saga land on the same partition and participants see them in order.
type KafkaGateway struct {
	config  *KafkaGatewayConfig
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	logger  *zap.Logger
}

// NewKafkaGateway creates a gateway for the given brokers. Writers are
// created lazily per destination topic.
func NewKafkaGateway(config *KafkaGatewayConfig) (*KafkaGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("kafka gateway: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	return &KafkaGateway{
		config:  config,
		writers: make(map[string]*kafka.Writer),
		logger:  logger.GetLogger(),
	}, nil
}

// CommandTopic returns the topic a destination's commands are produced to.
func (g *KafkaGateway) CommandTopic(destination string) string {
	return g.config.TopicPrefix + ".commands." + destination
}

// EventTopic returns the topic participants publish their events to.
func EventTopic(prefix string) string {
	if prefix == "" {
		prefix = "saga"
	}
	return prefix + ".events"
}

// Send produces the command to the destination's topic. Produce failures are
// wrapped as delivery errors so the orchestrator's retry policy applies.
func (g *KafkaGateway) Send(ctx context.Context, cmd *saga.Command) error {
	value, err := encodeCommand(cmd)
	if err != nil {
		return saga.NewDeliveryError(err, "encode command %s", cmd.CommandID)
	}

	writer := g.writerFor(cmd.Destination)
	writeCtx, cancel := context.WithTimeout(ctx, g.config.WriteTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(cmd.SagaID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "command_id", Value: []byte(cmd.CommandID)},
			{Key: "command_type", Value: []byte(cmd.Type)},
		},
	}
	if err := writer.WriteMessages(writeCtx, msg); err != nil {
		return saga.NewDeliveryError(err, "produce command %s to %s", cmd.CommandID, writer.Topic)
	}

	g.logger.Debug("command produced",
		zap.String("saga_id", cmd.SagaID),
		zap.String("command_id", cmd.CommandID),
		zap.String("topic", writer.Topic))
	return nil
}

func (g *KafkaGateway) writerFor(destination string) *kafka.Writer {
	g.mu.Lock()
	defer g.mu.Unlock()

	if writer, exists := g.writers[destination]; exists {
		return writer
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(g.config.Brokers...),
		Topic:        g.CommandTopic(destination),
		Balancer:     &kafka.Hash{},
		RequiredAcks: g.config.RequiredAcks,
		WriteTimeout: g.config.WriteTimeout,
	}
	g.writers[destination] = writer
	return writer
}

// Close flushes and closes all per-destination writers.
func (g *KafkaGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for destination, writer := range g.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("kafka gateway: close writer %s: %w", destination, err)
		}
	}
	g.writers = make(map[string]*kafka.Writer)
	return firstErr
}

// encodeCommand marshals the command envelope produced to participants.
func encodeCommand(cmd *saga.Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// decodeEvent unmarshals a participant event consumed from Kafka.
func decodeEvent(value []byte) (*saga.Event, error) {
	var event saga.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if event.EventID == "" {
		return nil, fmt.Errorf("decode event: missing eventId")
	}
	if event.SagaID == "" {
		return nil, fmt.Errorf("decode event: missing sagaId")
	}
	return &event, nil
}

// KafkaEventConsumerConfig configures the participant event consumer.
type KafkaEventConsumerConfig struct {
	// Brokers lists the Kafka bootstrap addresses.
	Brokers []string

	// Topic is the participant event topic. Defaults to EventTopic("saga").
	Topic string

	// GroupID is the consumer group. Defaults to "saga-orchestrator".
	GroupID string

	// MinBytes and MaxBytes bound fetch sizes. Default 1 and 10MB.
	MinBytes int
	MaxBytes int
}

// Validate checks the configuration.
func (c *KafkaEventConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: at least one broker is required")
	}
	return nil
}

func (c *KafkaEventConsumerConfig) setDefaults() {
	if c.Topic == "" {
		c.Topic = EventTopic("saga")
	}
	if c.GroupID == "" {
		c.GroupID = "saga-orchestrator"
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
}

// KafkaEventConsumer reads participant events from Kafka and forwards them to
// an EventSink. Offsets are committed only after the sink accepts the event,
// so a crash replays uncommitted events; the dedup cache and the state
// manager's idempotent transitions make the replay harmless.
type KafkaEventConsumer struct {
	reader *kafka.Reader
	sink   saga.EventSink
	logger *zap.Logger
}

// NewKafkaEventConsumer creates a consumer feeding sink.
func NewKafkaEventConsumer(config *KafkaEventConsumerConfig, sink saga.EventSink) (*KafkaEventConsumer, error) {
	if config == nil {
		return nil, fmt.Errorf("kafka consumer: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  config.Brokers,
		Topic:    config.Topic,
		GroupID:  config.GroupID,
		MinBytes: config.MinBytes,
		MaxBytes: config.MaxBytes,
	})
	return &KafkaEventConsumer{
		reader: reader,
		sink:   sink,
		logger: logger.GetLogger(),
	}, nil
}

// Run consumes until the context is cancelled. Malformed messages are logged
// and committed so they cannot wedge the partition.
func (c *KafkaEventConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka consumer: fetch: %w", err)
		}

		event, err := decodeEvent(msg.Value)
		if err != nil {
			c.logger.Warn("dropping malformed participant event",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("kafka consumer: commit: %w", err)
			}
			continue
		}

		if err := c.sink.Dispatch(ctx, event); err != nil {
			c.logger.Error("event sink rejected participant event",
				zap.String("saga_id", event.SagaID),
				zap.String("event_id", event.EventID),
				zap.Error(err))
			// Fall through to commit: the dispatcher only rejects events
			// after it has shut down or classified them as undeliverable.
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka consumer: commit: %w", err)
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *KafkaEventConsumer) Close() error {
	return c.reader.Close()
}

var _ saga.ParticipantGateway = (*KafkaGateway)(nil)
