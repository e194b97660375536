package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SourceTopicHeader names the topic a dead letter was consumed from.
const SourceTopicHeader = "source-topic"

var errDLQDisabled = errors.New("DLQ producer not initialized")

// dlqEnvelope is what lands on the DLQ topic. A JSON original is embedded as-is so
// it can be replayed; anything else is kept as a string.
type dlqEnvelope struct {
	SourceTopic    string          `json:"source_topic"`
	OriginalKey    string          `json:"original_key"`
	OriginalEvent  json.RawMessage `json:"original_event,omitempty"`
	OriginalText   string          `json:"original_text,omitempty"`
	Reason         string          `json:"reason"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
}

// DLQProducer dead-letters progress events the auditor cannot decode.
type DLQProducer struct {
	logger      *zap.Logger
	writer      KafkaWriter
	dlqTopic    string
	sourceTopic string
	now         func() time.Time
}

// NewDLQProducer returns a nil producer if cfg.DLQTopic is empty (DLQ disabled)
func NewDLQProducer(ctx context.Context, logger *zap.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured, dead-lettering is disabled")
		return nil, nil
	}

	if err := ensureTopic(cfg.Brokers, cfg.DLQTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists: %w", cfg.DLQTopic, err)
	}

	return &DLQProducer{
		logger: logger.With(zap.String("topic", cfg.DLQTopic)),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.MaxWait,
		},
		dlqTopic:    cfg.DLQTopic,
		sourceTopic: cfg.ProgressTopic,
		now:         time.Now,
	}, nil
}

func (p *DLQProducer) PublishToDLQ(ctx context.Context, letter DeadLetter) error {
	if p == nil || p.writer == nil {
		return errDLQDisabled
	}

	envelope := dlqEnvelope{
		SourceTopic:    p.sourceTopic,
		OriginalKey:    letter.Key,
		Reason:         letter.Reason,
		CorrelationID:  correlation.FromContext(ctx),
		DeadLetteredAt: p.now().UTC(),
	}
	if json.Valid(letter.Value) {
		envelope.OriginalEvent = letter.Value
	} else {
		envelope.OriginalText = string(letter.Value)
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	headers := []kafka.Header{
		{Key: DLQReasonHeader, Value: []byte(letter.Reason)},
		{Key: SourceTopicHeader, Value: []byte(p.sourceTopic)},
	}
	if envelope.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: CorrelationIDHeader, Value: []byte(envelope.CorrelationID)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(letter.Key), Value: value, Headers: headers}); err != nil {
		p.logger.Error("Failed to dead-letter message", zap.String("key", letter.Key), zap.Error(err))
		return fmt.Errorf("failed to publish message to DLQ %s: %w", p.dlqTopic, err)
	}

	p.logger.Warn("Dead-lettered message",
		zap.String("key", letter.Key),
		zap.String("reason", letter.Reason),
		zap.String("source_topic", p.sourceTopic),
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
