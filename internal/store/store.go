// Package store implements the destination document stores the relay writes
// to, and the decorators applied around their write operation. A Store is
// opened once per process and shared by every batch.
package store

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
)

// Store is a destination the relay can write documents to.
//
// Write must return an error wrapping apperrors.ErrDuplicateDocument when a
// keyed document already exists, and must never overwrite it.
type Store interface {
	relay.Writer
	Ping(ctx context.Context) error
	Close() error
}
