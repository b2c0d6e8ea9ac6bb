package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/google/uuid"
)

// Memory keeps documents in process. It is used for local runs and tests.
type Memory struct {
	mu    sync.Mutex
	order []string
	docs  map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]any)}
}

func (m *Memory) Write(_ context.Context, doc relay.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := doc.Key
	if key == "" {
		key = uuid.NewString()
	}
	if _, ok := m.docs[key]; ok {
		return fmt.Errorf("memory store key %q: %w", key, apperrors.ErrDuplicateDocument)
	}
	m.docs[key] = doc.Body
	m.order = append(m.order, key)
	return nil
}

// Documents returns the stored documents in write order.
func (m *Memory) Documents() []relay.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]relay.Document, len(m.order))
	for i, key := range m.order {
		out[i] = relay.Document{Key: key, Body: m.docs[key]}
	}
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
