package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/redis"
	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	s := NewRedis(client, "ai-usage-container")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStoresDocumentAsJSON(t *testing.T) {
	s, mr := newTestRedis(t)
	doc := relay.Document{Key: "usage/0/7", Body: map[string]any{"model": "gpt-4o", "tokens": json.Number("12")}}
	if err := s.Write(context.Background(), doc); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := mr.Get("ai-usage-container:doc:usage/0/7")
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	if got["model"] != "gpt-4o" || got["tokens"] != float64(12) {
		t.Errorf("unexpected stored document: %v", got)
	}
}

func TestRedisDuplicateKeyIsNotOverwritten(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	if err := s.Write(ctx, relay.Document{Key: "k", Body: map[string]any{"v": "first"}}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := s.Write(ctx, relay.Document{Key: "k", Body: map[string]any{"v": "second"}})
	if !errors.Is(err, apperrors.ErrDuplicateDocument) {
		t.Fatalf("expected ErrDuplicateDocument, got %v", err)
	}
	raw, _ := mr.Get(s.DocKey("k"))
	if raw != `{"v":"first"}` {
		t.Errorf("stored value = %s", raw)
	}
}

func TestRedisUnkeyedDocumentsUseSequence(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Write(ctx, relay.Document{Body: map[string]any{"i": i}}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	for _, id := range []string{"1", "2", "3"} {
		if !mr.Exists(s.DocKey(id)) {
			t.Errorf("expected key %s", s.DocKey(id))
		}
	}
}

func TestRedisServerErrorIsNotDuplicate(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.SetError("LOADING dataset in memory")
	err := s.Write(context.Background(), relay.Document{Key: "k", Body: map[string]any{}})
	if err == nil {
		t.Fatal("expected error while server refuses commands")
	}
	if errors.Is(err, apperrors.ErrDuplicateDocument) {
		t.Errorf("server error must not be reported as duplicate: %v", err)
	}
}
