// Package kafka provides the Kafka transport: a consumer that assembles
// batches from a consumer group and hands them to a BatchHandler, and a JSON
// producer. Both speak to Azure Event Hubs through its Kafka endpoint as
// well as to plain Kafka clusters.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// BatchHandler processes one batch of messages. A non-nil error marks the
// whole batch as failed.
type BatchHandler func(ctx context.Context, msgs []kafka.Message) error

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a consumer group, groups them into batches
// and commits each batch once the handler is done with it.
type Consumer struct {
	reader  messageReader
	handler BatchHandler
	src     config.SourceConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	dialer  *kafka.Dialer
	brokers []string
}

// NewConsumer creates a Consumer for cfg.Topic. m may be nil.
func NewConsumer(cfg config.KafkaConfig, src config.SourceConfig, handler BatchHandler, m *metrics.Metrics) (*Consumer, error) {
	dialer, err := NewDialer(cfg)
	if err != nil {
		return nil, err
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		Dialer:      dialer,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     src.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	c := newConsumer(r, cfg.Topic, src, handler, m)
	c.dialer = dialer
	c.brokers = cfg.Brokers
	return c, nil
}

func newConsumer(r messageReader, topic string, src config.SourceConfig, handler BatchHandler, m *metrics.Metrics) *Consumer {
	if src.MaxBatchSize <= 0 {
		src.MaxBatchSize = 1
	}
	return &Consumer{
		reader:  r,
		handler: handler,
		src:     src,
		metrics: m,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start enters the consume loop and returns when ctx is cancelled. The
// batch in hand at that point is left uncommitted, so the group hands it out
// again after a restart.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		"max_batch_size", c.src.MaxBatchSize,
		"max_wait", c.src.MaxWait,
		"max_redeliveries", c.src.MaxRedeliveries,
	)
	for {
		batch, err := c.nextBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if !c.deliver(ctx, batch) {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
		if err := c.reader.CommitMessages(ctx, batch...); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			last := batch[len(batch)-1]
			c.logger.Error("failed to commit batch",
				"partition", last.Partition,
				"offset", last.Offset,
				"count", len(batch),
				"error", err,
			)
		}
	}
}

// nextBatch blocks for the first message, then collects more until the batch
// is full or MaxWait has passed since the first one arrived.
func (c *Consumer) nextBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}
	if c.src.MaxBatchSize == 1 {
		return batch, nil
	}

	fillCtx := ctx
	if c.src.MaxWait > 0 {
		var cancel context.CancelFunc
		fillCtx, cancel = context.WithTimeout(ctx, c.src.MaxWait)
		defer cancel()
	}
	for len(batch) < c.src.MaxBatchSize {
		msg, err := c.reader.FetchMessage(fillCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if fillCtx.Err() != nil {
				break
			}
			// Hand over what we have; the fetch error resurfaces next round.
			c.logger.Warn("fetch failed while filling batch", "collected", len(batch), "error", err)
			break
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// deliver runs the handler, redelivering a failed batch with backoff. It
// reports false when ctx ended before the batch was settled.
func (c *Consumer) deliver(ctx context.Context, batch []kafka.Message) bool {
	attempts := 1
	if !c.src.CommitOnFailure {
		attempts += c.src.MaxRedeliveries
	}
	first, last := batch[0], batch[len(batch)-1]

	err := resilience.Retry(ctx, "kafka-batch", resilience.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: c.src.RedeliveryBackoff,
		OnRetry: func(attempt int, lastErr error) {
			if c.metrics != nil {
				c.metrics.RedeliveriesTotal.Inc()
			}
			c.logger.Warn("redelivering batch",
				"attempt", attempt,
				"partition", first.Partition,
				"first_offset", first.Offset,
				"last_offset", last.Offset,
				"error", lastErr,
			)
		},
	}, func(ctx context.Context, _ int) error {
		return c.handler(ctx, batch)
	})
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	if c.metrics != nil {
		c.metrics.BatchesAbandoned.Inc()
	}
	c.logger.Error("batch abandoned",
		"partition", first.Partition,
		"first_offset", first.Offset,
		"last_offset", last.Offset,
		"count", len(batch),
		"attempts", attempts,
		"error", err,
	)
	return true
}

// Ping succeeds when at least one broker accepts a connection.
func (c *Consumer) Ping(ctx context.Context) error {
	if c.dialer == nil {
		return nil
	}
	var lastErr error
	for _, broker := range c.brokers {
		conn, err := c.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader: %w", err)
	}
	return nil
}
