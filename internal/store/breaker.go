package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/resilience"
)

// Breaker fails writes fast while the wrapped store keeps failing. A
// duplicate is an answer from a healthy store and never trips it.
type Breaker struct {
	Store
	cb *resilience.CircuitBreaker
}

func NewBreaker(s Store, name string, cfg resilience.CircuitBreakerConfig, m *metrics.Metrics) *Breaker {
	cfg.IsFailure = func(err error) bool {
		return err != nil && !errors.Is(err, apperrors.ErrDuplicateDocument)
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
		cfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Breaker{Store: s, cb: resilience.NewCircuitBreaker(name, cfg)}
}

func (b *Breaker) Write(ctx context.Context, doc relay.Document) error {
	err := b.cb.Execute(func() error {
		return b.Store.Write(ctx, doc)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return err
}

// State reports the breaker's current state.
func (b *Breaker) State() resilience.State {
	return b.cb.GetState()
}
