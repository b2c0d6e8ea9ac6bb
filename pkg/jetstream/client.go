// Package jetstream provides the NATS JetStream transport: a connection
// helper that provisions the stream and durable consumer, a batch consumer
// that acks or naks whole batches, and a publisher for the load generator.
package jetstream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client holds a NATS connection and its JetStream context.
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    config.NATSConfig
	logger *slog.Logger
}

// Connect dials the server and ensures the configured stream exists.
func Connect(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	logger := slog.Default().With("component", "jetstream", "stream", cfg.Stream)
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", cfg.Stream, err)
	}
	logger.Info("connected to jetstream", "url", nc.ConnectedUrl(), "subject", cfg.Subject)
	return &Client{nc: nc, js: js, cfg: cfg, logger: logger}, nil
}

// Consumer creates or updates the durable pull consumer the relay reads
// from.
func (c *Client) Consumer(ctx context.Context) (jetstream.Consumer, error) {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Consumer,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s: %w", c.cfg.Consumer, err)
	}
	return cons, nil
}

// Publish sends data to the configured subject and waits for the stream to
// acknowledge it.
func (c *Client) Publish(ctx context.Context, data []byte) error {
	if _, err := c.js.Publish(ctx, c.cfg.Subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.cfg.Subject, err)
	}
	return nil
}

// Ping reports whether the connection is currently up.
func (c *Client) Ping(context.Context) error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("nats connection %s", c.nc.Status())
	}
	return nil
}

// Close drains in-flight messages and closes the connection.
func (c *Client) Close() error {
	return c.nc.Drain()
}
