package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/logger"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/segmentio/kafka-go"
)

type jsMsg struct {
	jetstream.Msg
	data []byte
	md   *jetstream.MsgMetadata
}

func (m *jsMsg) Data() []byte    { return m.data }
func (m *jsMsg) Subject() string { return "usage.events" }

func (m *jsMsg) Metadata() (*jetstream.MsgMetadata, error) {
	if m.md == nil {
		return nil, errors.New("not a jetstream message")
	}
	return m.md, nil
}

func TestFromKafka(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := FromKafka(kafka.Message{Topic: "ai-usage", Partition: 3, Offset: 42, Key: []byte("sub-1"), Value: []byte(`{}`), Time: ts})
	if rec.Position() != "ai-usage/3/42" {
		t.Errorf("Position() = %s", rec.Position())
	}
	if string(rec.Key) != "sub-1" || !rec.Timestamp.Equal(ts) {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestFromJetStream(t *testing.T) {
	rec := FromJetStream(&jsMsg{
		data: []byte(`{"a":1}`),
		md:   &jetstream.MsgMetadata{Stream: "AI_USAGE", Sequence: jetstream.SequencePair{Stream: 9}},
	})
	if rec.Position() != "AI_USAGE/0/9" {
		t.Errorf("Position() = %s", rec.Position())
	}

	rec = FromJetStream(&jsMsg{data: []byte(`{}`)})
	if rec.Position() != "usage.events/0/0" {
		t.Errorf("Position() without metadata = %s", rec.Position())
	}
}

func TestHandlerRunsBatchThroughRelay(t *testing.T) {
	mem := store.NewMemory()
	r := relay.New(mem, relay.Options{KeyPolicy: relay.KeyPosition, Logger: logger.Discard()})
	h := NewHandler(r)

	msgs := []kafka.Message{
		{Topic: "ai-usage", Offset: 0, Value: []byte(`{"model":"gpt-4o"}`)},
		{Topic: "ai-usage", Offset: 1, Value: []byte(`not json`)},
		{Topic: "ai-usage", Offset: 2, Value: []byte(`{"model":"gpt-4o-mini"}`)},
	}
	err := h.Kafka(context.Background(), msgs)

	var recErr *relay.RecordError
	if !errors.As(err, &recErr) || recErr.Index != 1 || !errors.Is(err, apperrors.ErrParse) {
		t.Fatalf("expected parse failure of record 1, got %v", err)
	}
	docs := mem.Documents()
	if len(docs) != 2 || docs[0].Key != "ai-usage/0/0" || docs[1].Key != "ai-usage/0/2" {
		t.Errorf("unexpected documents %+v", docs)
	}
}

type captureProcessor struct {
	ctx context.Context
}

func (p *captureProcessor) ProcessBatch(ctx context.Context, records []relay.Record) (relay.Result, error) {
	p.ctx = ctx
	return relay.Result{Attempted: len(records)}, nil
}

func TestHandlerTagsEachBatchWithID(t *testing.T) {
	p := &captureProcessor{}
	h := NewHandler(p)
	if err := h.JetStream(context.Background(), nil); err != nil {
		t.Fatalf("JetStream: %v", err)
	}
	first := p.ctx
	if err := h.JetStream(context.Background(), nil); err != nil {
		t.Fatalf("JetStream: %v", err)
	}
	if first == nil || p.ctx == first {
		t.Fatal("expected a fresh context per batch")
	}
	if logger.BatchID(first) == "" || logger.BatchID(first) == logger.BatchID(p.ctx) {
		t.Errorf("batch ids %q and %q", logger.BatchID(first), logger.BatchID(p.ctx))
	}
}
