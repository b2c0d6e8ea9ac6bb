package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres stores each document as a JSONB row in a table named after the
// collection:
//
//	CREATE TABLE "<collection>" (
//	    id   TEXT PRIMARY KEY,
//	    body JSONB NOT NULL
//	);
type Postgres struct {
	db     *postgres.Client
	table  string
	insert string
}

// NewPostgres binds a store to collection on db, creating the table first
// when ensureSchema is set.
func NewPostgres(ctx context.Context, db *postgres.Client, collection string, ensureSchema bool) (*Postgres, error) {
	table := pq.QuoteIdentifier(collection)
	p := &Postgres{
		db:     db,
		table:  table,
		insert: fmt.Sprintf(`INSERT INTO %s (id, body) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, table),
	}
	if ensureSchema {
		if err := p.ensureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.db.DB.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, body JSONB NOT NULL)`, p.table))
	if err != nil {
		return fmt.Errorf("creating table %s: %w", p.table, err)
	}
	return nil
}

func (p *Postgres) Write(ctx context.Context, doc relay.Document) error {
	body, err := json.Marshal(doc.Body)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	key := doc.Key
	if key == "" {
		key = uuid.NewString()
	}
	res, err := p.db.DB.ExecContext(ctx, p.insert, key, body)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", p.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("postgres id %q: %w", key, apperrors.ErrDuplicateDocument)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
