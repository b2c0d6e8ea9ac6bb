package jetstream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// BatchHandler processes one batch of messages. A non-nil error marks the
// whole batch as failed.
type BatchHandler func(ctx context.Context, msgs []jetstream.Msg) error

// fetcher is the part of jetstream.Consumer used here.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Consumer pulls batches from a durable consumer. A successful batch is
// acked; a failed one is nacked so the server delivers it again, until a
// message has been delivered more than MaxRedeliveries times, at which point
// the batch is acked and logged as abandoned.
type Consumer struct {
	cons    fetcher
	handler BatchHandler
	src     config.SourceConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewConsumer wraps cons. m may be nil.
func NewConsumer(cons jetstream.Consumer, src config.SourceConfig, handler BatchHandler, m *metrics.Metrics) *Consumer {
	return newConsumer(cons, src, handler, m)
}

func newConsumer(f fetcher, src config.SourceConfig, handler BatchHandler, m *metrics.Metrics) *Consumer {
	if src.MaxBatchSize <= 0 {
		src.MaxBatchSize = 1
	}
	if src.MaxWait <= 0 {
		src.MaxWait = time.Second
	}
	return &Consumer{
		cons:    f,
		handler: handler,
		src:     src,
		metrics: m,
		logger:  slog.Default().With("component", "jetstream-consumer"),
	}
}

// Start fetches and handles batches until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		"max_batch_size", c.src.MaxBatchSize,
		"max_wait", c.src.MaxWait,
		"max_redeliveries", c.src.MaxRedeliveries,
	)
	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
		msgs, err := c.fetch()
		if err != nil {
			c.logger.Error("failed to fetch messages", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		c.settle(ctx, msgs, c.handler(ctx, msgs))
	}
}

func (c *Consumer) fetch() ([]jetstream.Msg, error) {
	batch, err := c.cons.Fetch(c.src.MaxBatchSize, jetstream.FetchMaxWait(c.src.MaxWait))
	if err != nil {
		return nil, err
	}
	var msgs []jetstream.Msg
	for msg := range batch.Messages() {
		msgs = append(msgs, msg)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && len(msgs) == 0 {
		return nil, err
	}
	return msgs, nil
}

func (c *Consumer) settle(ctx context.Context, msgs []jetstream.Msg, handlerErr error) {
	if handlerErr == nil {
		c.ackAll(msgs)
		return
	}
	if ctx.Err() != nil {
		// Left unacked; the server redelivers after AckWait.
		return
	}

	delivered := deliveries(msgs)
	if c.src.CommitOnFailure || delivered > uint64(c.src.MaxRedeliveries) {
		if !c.src.CommitOnFailure && c.metrics != nil {
			c.metrics.BatchesAbandoned.Inc()
		}
		c.logger.Error("batch abandoned",
			"count", len(msgs),
			"deliveries", delivered,
			"error", handlerErr,
		)
		c.ackAll(msgs)
		return
	}

	if c.metrics != nil {
		c.metrics.RedeliveriesTotal.Inc()
	}
	c.logger.Warn("batch failed, requesting redelivery",
		"count", len(msgs),
		"deliveries", delivered,
		"delay", c.src.RedeliveryBackoff,
		"error", handlerErr,
	)
	for _, msg := range msgs {
		var err error
		if c.src.RedeliveryBackoff > 0 {
			err = msg.NakWithDelay(c.src.RedeliveryBackoff)
		} else {
			err = msg.Nak()
		}
		if err != nil {
			c.logger.Error("failed to nak message", "subject", msg.Subject(), "error", err)
		}
	}
}

func (c *Consumer) ackAll(msgs []jetstream.Msg) {
	for _, msg := range msgs {
		if err := msg.Ack(); err != nil {
			c.logger.Error("failed to ack message", "subject", msg.Subject(), "error", err)
		}
	}
}

// deliveries returns the highest delivery count in the batch.
func deliveries(msgs []jetstream.Msg) uint64 {
	var n uint64
	for _, msg := range msgs {
		md, err := msg.Metadata()
		if err != nil {
			continue
		}
		if md.NumDelivered > n {
			n = md.NumDelivered
		}
	}
	return n
}
