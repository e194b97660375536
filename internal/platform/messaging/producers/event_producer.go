package producers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProducer writes JSON events to a single topic. Writes are synchronous so
// callers know the broker has the event before they mark it published.
type EventProducer struct {
	logger *zap.Logger
	writer KafkaWriter
	topic  string
}

// NewEventProducer ensures topic exists and returns a producer for it.
// Messages are keyed by project, so the hash balancer keeps each chain on one partition.
func NewEventProducer(ctx context.Context, logger *zap.Logger, cfg *config.KafkaConfig, topic string) (*EventProducer, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}

	if err := ensureTopic(cfg.Brokers, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists: %w", topic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &EventProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}, nil
}

func (p *EventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for topic %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}
	if id := correlation.FromContext(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: CorrelationIDHeader, Value: []byte(id)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			zap.String("topic", p.topic),
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message", zap.String("topic", p.topic), zap.String("key", key))
	return nil
}

func (p *EventProducer) Close() error {
	p.logger.Info("Closing Kafka event producer", zap.String("topic", p.topic))
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
