// Package kafka wraps segmentio/kafka-go for the two topics the server uses:
// document ingest and analytics events. Values travel as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/config"
)

// MessageHandler processes one message. A nil return commits the offset; an
// error leaves it uncommitted for redelivery after a restart.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type Consumer struct {
	reader       *kafka.Reader
	handler      MessageHandler
	fetchBackoff time.Duration
	logger       *slog.Logger
}

type consumerOptions struct {
	groupID       string
	fromBeginning bool
	fetchBackoff  time.Duration
}

type ConsumerOption func(*consumerOptions)

// WithGroupID overrides the consumer group from config.
func WithGroupID(id string) ConsumerOption {
	return func(o *consumerOptions) { o.groupID = id }
}

// FromBeginning makes a group with no committed offset start at the oldest
// retained message instead of the newest. A fresh group per process replays
// the whole topic, which is how an in-memory store is rebuilt on startup.
func FromBeginning() ConsumerOption {
	return func(o *consumerOptions) { o.fromBeginning = true }
}

// WithFetchBackoff sets the pause after a failed fetch.
func WithFetchBackoff(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) { o.fetchBackoff = d }
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{groupID: cfg.ConsumerGroup, fetchBackoff: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	startOffset := kafka.LastOffset
	if o.fromBeginning {
		startOffset = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     o.groupID,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: startOffset,
	})
	return &Consumer{
		reader:       r,
		handler:      handler,
		fetchBackoff: o.fetchBackoff,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic, "group", o.groupID),
	}
}

// Start fetches and handles messages until ctx is cancelled, then closes the
// reader. Offsets are committed only after the handler succeeds.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "backoff", c.fetchBackoff)
			select {
			case <-time.After(c.fetchBackoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
		log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			log.Error("failed to process message", "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("failed to commit message", "error", err)
		}
	}
}

// Lag is the reader's last reported distance from the end of its partitions.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
