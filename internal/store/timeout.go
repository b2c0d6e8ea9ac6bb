package store

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/resilience"
)

// Timeout bounds every write with a deadline on its context. Write does not
// return before the driver does, so at most one write per caller is in
// flight; a driver that fails after the deadline reports apperrors.ErrTimeout.
type Timeout struct {
	Store
	limit time.Duration
}

func NewTimeout(s Store, limit time.Duration) *Timeout {
	return &Timeout{Store: s, limit: limit}
}

func (t *Timeout) Write(ctx context.Context, doc relay.Document) error {
	return resilience.WithTimeout(ctx, t.limit, "store write", func(ctx context.Context) error {
		return t.Store.Write(ctx, doc)
	})
}
