// Command loadtest publishes synthetic AI usage events to the relay's source
// and reports publish throughput and latency. A fraction of the events can
// be made malformed to exercise per-record failure handling end to end.
//
// Usage:
//
//	go run ./cmd/loadtest [-config configs/development.yaml] [-concurrency 10] [-duration 30s] [-batch 50] [-malformed 0.05]
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/jetstream"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/logger"
	kafkago "github.com/segmentio/kafka-go"
)

type publisher interface {
	publish(ctx context.Context, key []byte, values [][]byte) error
	Close() error
}

type kafkaPublisher struct{ *kafka.Producer }

func (p kafkaPublisher) publish(ctx context.Context, key []byte, values [][]byte) error {
	if len(values) == 1 {
		return p.Publish(ctx, key, values[0])
	}
	msgs := make([]kafkago.Message, len(values))
	for i, v := range values {
		msgs[i] = kafkago.Message{Key: key, Value: v}
	}
	return p.PublishBatch(ctx, msgs)
}

type jetStreamPublisher struct{ *jetstream.Client }

func (p jetStreamPublisher) publish(ctx context.Context, _ []byte, values [][]byte) error {
	for _, v := range values {
		if err := p.Publish(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

type Stats struct {
	published   atomic.Int64
	malformed   atomic.Int64
	errorCount  atomic.Int64
	latencies   []time.Duration
	latenciesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{latencies: make([]time.Duration, 0, 100000)}
}

func (s *Stats) Record(duration time.Duration, events, bad int, err error) {
	if err != nil {
		s.errorCount.Add(int64(events))
		return
	}
	s.published.Add(int64(events))
	s.malformed.Add(int64(bad))
	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	concurrency := flag.Int("concurrency", 10, "number of concurrent publishers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	malformed := flag.Float64("malformed", 0, "fraction of events sent malformed (0-1)")
	batch := flag.Int("batch", 1, "events per publish call")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("warn", cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	pub, target, err := newPublisher(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create publisher: %v\n", err)
		os.Exit(1)
	}
	defer pub.Close()

	fmt.Println("=== Usage Relay Load Test ===")
	fmt.Printf("Target:      %s\n", target)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Batch:       %d\n", *batch)
	fmt.Printf("Malformed:   %.1f%%\n", *malformed*100)
	fmt.Println()

	stats := runLoadTest(ctx, pub, *concurrency, max(*batch, 1), *malformed)
	printReport(stats, *duration)
}

func newPublisher(ctx context.Context, cfg *config.Config) (publisher, string, error) {
	switch cfg.Source.Driver {
	case config.SourceJetStream:
		client, err := jetstream.Connect(ctx, cfg.NATS)
		if err != nil {
			return nil, "", err
		}
		return jetStreamPublisher{client}, "jetstream " + cfg.NATS.Subject, nil
	default:
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, "", err
		}
		return kafkaPublisher{producer}, "kafka " + cfg.Kafka.Topic, nil
	}
}

func runLoadTest(ctx context.Context, pub publisher, concurrency, batch int, malformed float64) *Stats {
	stats := NewStats()
	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			key := []byte(fmt.Sprintf("worker-%d", workerID))
			for ctx.Err() == nil {
				values := make([][]byte, 0, batch)
				bad := 0
				for len(values) < batch {
					body, isBad, err := payload(rng, malformed)
					if err != nil {
						stats.Record(0, 1, 0, err)
						continue
					}
					if isBad {
						bad++
					}
					values = append(values, body)
				}
				start := time.Now()
				err := pub.publish(ctx, key, values)
				if err != nil && ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), len(values), bad, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	published := stats.published.Load()
	bad := stats.malformed.Load()
	errors := stats.errorCount.Load()
	total := published + errors

	fmt.Println("=== Results ===")
	fmt.Printf("Published:       %d\n", published)
	fmt.Printf("  malformed:     %d\n", bad)
	fmt.Printf("Publish errors:  %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Events/sec:      %.2f\n", float64(published)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()
	if len(latencies) == 0 {
		return
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))

	fmt.Println()
	fmt.Println("=== Publish Latency ===")
	fmt.Printf("Min:    %s\n", latencies[0])
	fmt.Printf("Avg:    %s\n", avg)
	fmt.Printf("P50:    %s\n", percentile(latencies, 50))
	fmt.Printf("P90:    %s\n", percentile(latencies, 90))
	fmt.Printf("P99:    %s\n", percentile(latencies, 99))
	fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

	var sumSquared float64
	avgFloat := float64(avg)
	for _, l := range latencies {
		diff := float64(l) - avgFloat
		sumSquared += diff * diff
	}
	fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
