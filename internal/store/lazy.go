package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// OpenFunc connects to a store.
type OpenFunc func(ctx context.Context) (Store, error)

const defaultConnectTimeout = 30 * time.Second

// Lazy defers connecting until the first write. Concurrent first writes share
// one connection attempt; a failed attempt is retried on the next call. The
// attempt runs on its own deadline so a caller giving up early does not fail
// it for the callers still waiting.
type Lazy struct {
	open           OpenFunc
	connectTimeout time.Duration
	group          singleflight.Group

	mu    sync.RWMutex
	store Store
}

func NewLazy(open OpenFunc) *Lazy {
	return &Lazy{open: open, connectTimeout: defaultConnectTimeout}
}

func (l *Lazy) get(ctx context.Context) (Store, error) {
	l.mu.RLock()
	s := l.store
	l.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	ch := l.group.DoChan("open", func() (interface{}, error) {
		l.mu.RLock()
		s := l.store
		l.mu.RUnlock()
		if s != nil {
			return s, nil
		}
		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.connectTimeout)
		defer cancel()
		s, err := l.open(openCtx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.store = s
		l.mu.Unlock()
		return s, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, res.Err)
		}
		return res.Val.(Store), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for connection: %v", apperrors.ErrStoreUnavailable, ctx.Err())
	}
}

func (l *Lazy) Write(ctx context.Context, doc relay.Document) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Write(ctx, doc)
}

// Ping connects if needed and pings the store.
func (l *Lazy) Ping(ctx context.Context) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Connected reports whether a connection has been established.
func (l *Lazy) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store != nil
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}
