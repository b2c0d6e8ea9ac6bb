package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/store"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/metrics"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
)

// TestRedisPipeline runs Kafka-shaped batches through ingest, the relay and
// a decorated redis store opened from configuration.
func TestRedisPipeline(t *testing.T) {
	mr := miniredis.RunT(t)
	m := metrics.New(prometheus.NewRegistry())
	st, err := store.Open(context.Background(), config.StoreConfig{
		Driver:     config.StoreRedis,
		Collection: "ai-usage-container",
		Breaker:    config.BreakerConfig{Enabled: true, FailureThreshold: 5},
		Redis:      config.RedisConfig{Addr: mr.Addr()},
	}, m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	r := relay.New(st, relay.Options{KeyPolicy: relay.KeyPosition, Concurrency: 4, Logger: logger.Discard(), Metrics: m})
	h := ingest.NewHandler(r)

	batch := []kafka.Message{
		{Topic: "ai-usage", Partition: 1, Offset: 0, Value: []byte(`{"model":"gpt-4o"}`)},
		{Topic: "ai-usage", Partition: 1, Offset: 1, Value: []byte{0xff}},
		{Topic: "ai-usage", Partition: 1, Offset: 2, Value: []byte(`{"model":"gpt-4o-mini"}`)},
		{Topic: "ai-usage", Partition: 1, Offset: 3, Value: []byte(`"just a string"`)},
	}
	err = h.Kafka(context.Background(), batch)
	var batchErr *relay.BatchError
	if !errors.As(err, &batchErr) || len(batchErr.Failures) != 2 {
		t.Fatalf("expected two failures, got %v", err)
	}
	if batchErr.Failures[0].Index != 1 || batchErr.Failures[1].Index != 3 {
		t.Errorf("failures out of order: %v", err)
	}
	for _, key := range []string{"ai-usage-container:doc:ai-usage/1/0", "ai-usage-container:doc:ai-usage/1/2"} {
		if !mr.Exists(key) {
			t.Errorf("missing %s", key)
		}
	}

	// Redelivery of the same batch writes nothing new.
	_ = h.Kafka(context.Background(), batch)
	if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("duplicate")); got != 2 {
		t.Errorf("duplicates = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BatchesTotal.WithLabelValues("partial")); got != 2 {
		t.Errorf("partial batches = %v, want 2", got)
	}
}
