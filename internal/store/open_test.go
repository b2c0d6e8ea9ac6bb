package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/alicebob/miniredis/v2"
)

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "cosmos"}, nil)
	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestOpenAppliesDecorators(t *testing.T) {
	cfg := config.StoreConfig{
		Driver:       config.StoreMemory,
		WriteTimeout: time.Second,
		Breaker:      config.BreakerConfig{Enabled: true, FailureThreshold: 3, ResetTimeout: time.Second},
	}
	s, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, ok := s.(*Breaker)
	if !ok {
		t.Fatalf("expected *Breaker outermost, got %T", s)
	}
	if _, ok := b.Store.(*Timeout); !ok {
		t.Fatalf("expected *Timeout inside breaker, got %T", b.Store)
	}
	if err := s.Write(context.Background(), doc); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestOpenLazyDoesNotDial(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.StoreConfig{
		Driver:     config.StoreRedis,
		Collection: "usage",
		Lazy:       true,
		Redis:      config.RedisConfig{Addr: mr.Addr()},
	}
	s, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	lazy := s.(*Lazy)
	if lazy.Connected() {
		t.Fatal("lazy store connected on open")
	}
	if err := s.Write(context.Background(), doc); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !mr.Exists("usage:doc:k") {
		t.Error("document not written through lazy store")
	}
}
