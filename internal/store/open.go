package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/metrics"
	pkgopensearch "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/opensearch"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/resilience"
)

// Open connects the configured driver and applies the write timeout and
// circuit breaker around it. With cfg.Lazy the connection is made on first
// use instead. m may be nil.
func Open(ctx context.Context, cfg config.StoreConfig, m *metrics.Metrics) (Store, error) {
	var s Store
	if cfg.Lazy {
		s = NewLazy(func(ctx context.Context) (Store, error) {
			return openDriver(ctx, cfg)
		})
	} else {
		var err error
		if s, err = openDriver(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.WriteTimeout > 0 {
		s = NewTimeout(s, cfg.WriteTimeout)
	}
	if cfg.Breaker.Enabled {
		s = NewBreaker(s, "store-"+cfg.Driver, resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout,
		}, m)
	}
	return s, nil
}

func openDriver(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return NewMemory(), nil

	case config.StorePostgres:
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s, err := NewPostgres(ctx, db, cfg.Collection, cfg.EnsureSchema)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil

	case config.StoreOpenSearch:
		client, err := pkgopensearch.NewClient(ctx, cfg.OpenSearch)
		if err != nil {
			return nil, err
		}
		return NewOpenSearch(ctx, client, cfg.Collection, cfg.OpenSearch.Refresh, cfg.EnsureSchema)

	case config.StoreRedis:
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.Collection), nil

	default:
		return nil, apperrors.NewConfigError("store.driver", "unknown driver %q", cfg.Driver)
	}
}

// Describe returns a short human-readable target for logs.
func Describe(cfg config.StoreConfig) string {
	switch cfg.Driver {
	case config.StorePostgres:
		return fmt.Sprintf("postgres %s:%d/%s table %s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database, cfg.Collection)
	case config.StoreOpenSearch:
		return fmt.Sprintf("opensearch %v index %s", cfg.OpenSearch.Addresses, cfg.Collection)
	case config.StoreRedis:
		return fmt.Sprintf("redis %s db %d prefix %s", cfg.Redis.Addr, cfg.Redis.DB, cfg.Collection)
	default:
		return cfg.Driver
	}
}
