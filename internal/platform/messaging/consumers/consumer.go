package consumers

import (
	"context"
	"time"

	"github.com/progress-ledger/internal/config"
	"github.com/progress-ledger/internal/platform/correlation"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CorrelationIDHeader is the Kafka header producers stamp with the request's correlation id.
const CorrelationIDHeader = "correlation-id"

// MessageHandler processes one message. A nil error commits its offset.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// MessageReader wraps kafka.Reader methods for testing
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer using a Kafka consumer group
type KafkaConsumer struct {
	reader     MessageReader
	logger     *zap.Logger
	topic      string
	retryDelay time.Duration
}

func NewKafkaConsumer(logger *zap.Logger, cfg *config.KafkaConfig, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		logger: logger,
		topic:  topic,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		}),
		retryDelay: time.Second,
	}
}

// Subscribe starts a goroutine that feeds every message to handler until ctx is canceled.
// The message's correlation id header, if any, is placed on the handler's context.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic", zap.String("topic", c.topic))
	go c.run(ctx, handler)
	return nil
}

func (c *KafkaConsumer) run(ctx context.Context, handler MessageHandler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer stopped", zap.String("topic", c.topic))
				return
			}
			c.logger.Error("Failed to fetch message from Kafka", zap.String("topic", c.topic), zap.Error(err))
			if !c.backoff(ctx) {
				return
			}
			continue
		}
		c.process(ctx, msg, handler)
	}
}

// process hands msg to handler and commits its offset only on success, so a
// failed message is redelivered after a rebalance or restart.
func (c *KafkaConsumer) process(ctx context.Context, msg kafka.Message, handler MessageHandler) {
	logger := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.ByteString("key", msg.Key),
	)
	logger.Debug("Received message from Kafka")

	msgCtx := correlation.WithID(ctx, headerValue(msg.Headers, CorrelationIDHeader))
	if err := handler(msgCtx, msg.Key, msg.Value); err != nil {
		logger.Error("Message handler failed, offset left uncommitted", zap.Error(err))
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Error("Failed to commit offset of handled message", zap.Error(err))
	}
}

// backoff waits retryDelay and reports false when ctx ended first.
func (c *KafkaConsumer) backoff(ctx context.Context) bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
