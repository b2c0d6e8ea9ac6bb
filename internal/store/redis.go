package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/redis"
)

// Redis stores each document as a JSON string under
// "<collection>:doc:<key>". Unkeyed documents get a key from the
// "<collection>:seq" counter.
type Redis struct {
	client *pkgredis.Client
	prefix string
}

func NewRedis(client *pkgredis.Client, collection string) *Redis {
	return &Redis{client: client, prefix: collection + ":"}
}

func (r *Redis) Write(ctx context.Context, doc relay.Document) error {
	body, err := json.Marshal(doc.Body)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	key := doc.Key
	if key == "" {
		seq, err := r.client.Incr(ctx, r.prefix+"seq")
		if err != nil {
			return fmt.Errorf("allocating document id: %w", err)
		}
		key = strconv.FormatInt(seq, 10)
	}
	stored, err := r.client.SetNX(ctx, r.DocKey(key), body, 0)
	if err != nil {
		return fmt.Errorf("storing %s: %w", r.DocKey(key), err)
	}
	if !stored {
		return fmt.Errorf("redis key %q: %w", r.DocKey(key), apperrors.ErrDuplicateDocument)
	}
	return nil
}

// DocKey returns the redis key holding the document with the given id.
func (r *Redis) DocKey(id string) string {
	return r.prefix + "doc:" + id
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
