// Command relay consumes usage-telemetry events in batches and stores each
// event as a document.
//
// Events are read from Kafka (or the Event Hubs Kafka endpoint) or from NATS
// JetStream, decoded and parsed one by one, and written to PostgreSQL,
// OpenSearch, Redis or an in-memory store. A bad event fails only itself; the
// batch is reported as failed after every event has been attempted.
// Prometheus metrics and health probes are served on the metrics port.
//
// Usage:
//
//	go run ./cmd/relay [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/store"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/jetstream"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("relay stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting relay",
		"source", cfg.Source.Driver,
		"store", store.Describe(cfg.Store),
		"key_policy", cfg.Relay.KeyPolicy,
		"concurrency", cfg.Relay.Concurrency,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	st, err := store.Open(ctx, cfg.Store, m)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	slog.Info("store ready", "driver", cfg.Store.Driver, "lazy", cfg.Store.Lazy)

	keyPolicy, err := relay.ParseKeyPolicy(cfg.Relay.KeyPolicy)
	if err != nil {
		return err
	}

	// The relay logs through a bounded queue so a slow log sink cannot hold
	// up a batch.
	async := logger.NewAsyncHandler(slog.Default().Handler(), cfg.Relay.AsyncLogBuffer)
	defer func() {
		async.Close()
		if n := async.Dropped(); n > 0 {
			slog.Warn("relay log records dropped", "count", n)
		}
	}()

	r := relay.New(st, relay.Options{
		KeyPolicy:   keyPolicy,
		Concurrency: cfg.Relay.Concurrency,
		Logger:      slog.New(async),
		Metrics:     m,
	})
	h := ingest.NewHandler(r)

	checker := health.NewChecker()
	if !cfg.Store.Lazy {
		checker.RegisterPing("store", st.Ping)
	}

	var source interface{ Start(context.Context) error }
	switch cfg.Source.Driver {
	case config.SourceKafka:
		consumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Source, h.Kafka, m)
		if err != nil {
			return fmt.Errorf("creating kafka consumer: %w", err)
		}
		defer consumer.Close()
		checker.RegisterPing("kafka", consumer.Ping)
		slog.Info("kafka consumer initialized",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		source = consumer

	case config.SourceJetStream:
		client, err := jetstream.Connect(ctx, cfg.NATS)
		if err != nil {
			return err
		}
		defer client.Close()
		cons, err := client.Consumer(ctx)
		if err != nil {
			return err
		}
		checker.RegisterPing("nats", client.Ping)
		source = jetstream.NewConsumer(cons, cfg.Source, h.JetStream, m)

	default:
		return fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Start(gctx)
	})
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
