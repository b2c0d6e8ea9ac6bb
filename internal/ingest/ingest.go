// Package ingest connects the transports to the relay: it turns Kafka and
// JetStream messages into relay records and runs each batch through the
// relay under its own batch id.
package ingest

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/segmentio/kafka-go"
)

// Processor runs one batch of records.
type Processor interface {
	ProcessBatch(ctx context.Context, records []relay.Record) (relay.Result, error)
}

type Handler struct {
	relay  Processor
	logger *slog.Logger
}

func NewHandler(p Processor) *Handler {
	return &Handler{
		relay:  p,
		logger: logger.WithComponent("ingest"),
	}
}

// Kafka is a kafka.BatchHandler.
func (h *Handler) Kafka(ctx context.Context, msgs []kafka.Message) error {
	records := make([]relay.Record, len(msgs))
	for i, m := range msgs {
		records[i] = FromKafka(m)
	}
	return h.process(ctx, records)
}

// JetStream is a jetstream.BatchHandler.
func (h *Handler) JetStream(ctx context.Context, msgs []jetstream.Msg) error {
	records := make([]relay.Record, len(msgs))
	for i, m := range msgs {
		records[i] = FromJetStream(m)
	}
	return h.process(ctx, records)
}

func (h *Handler) process(ctx context.Context, records []relay.Record) error {
	batchID := uuid.NewString()
	ctx = logger.WithBatchID(ctx, batchID)
	if len(records) > 0 {
		h.logger.Debug("dispatching batch",
			"batch_id", batchID,
			"records", len(records),
			"first", records[0].Position(),
			"last", records[len(records)-1].Position(),
		)
	}
	_, err := h.relay.ProcessBatch(ctx, records)
	return err
}

// FromKafka maps a Kafka message onto a record positioned by
// topic/partition/offset.
func FromKafka(m kafka.Message) relay.Record {
	return relay.Record{
		Source:    m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Body:      m.Value,
		Timestamp: m.Time,
	}
}

// FromJetStream maps a JetStream message onto a record positioned by
// stream/0/stream-sequence. A message without metadata keeps the subject as
// its source and a zero offset.
func FromJetStream(m jetstream.Msg) relay.Record {
	rec := relay.Record{
		Source: m.Subject(),
		Body:   m.Data(),
	}
	md, err := m.Metadata()
	if err != nil {
		return rec
	}
	rec.Source = md.Stream
	rec.Offset = int64(md.Sequence.Stream)
	rec.Timestamp = md.Timestamp
	return rec
}
