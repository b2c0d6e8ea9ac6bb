package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/internal/relay"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	pkgopensearch "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/opensearch"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// OpenSearch indexes each document into an index named after the
// collection. Keyed documents are created with op_type=create so an existing
// id is reported as a conflict instead of being overwritten.
type OpenSearch struct {
	client  *pkgopensearch.Client
	index   string
	refresh string
}

func NewOpenSearch(ctx context.Context, client *pkgopensearch.Client, index, refresh string, ensureIndex bool) (*OpenSearch, error) {
	s := &OpenSearch{client: client, index: index, refresh: refresh}
	if ensureIndex {
		if err := s.ensureIndex(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *OpenSearch) ensureIndex(ctx context.Context) error {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client.Client())
	if err != nil {
		return fmt.Errorf("checking index %s: %w", s.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = opensearchapi.IndicesCreateRequest{Index: s.index}.Do(ctx, s.client.Client())
	if err != nil {
		return fmt.Errorf("creating index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	// Another relay instance may have created it in between.
	if res.IsError() && !bytes.Contains(readBody(res.Body), []byte("resource_already_exists_exception")) {
		return fmt.Errorf("creating index %s: %s", s.index, res.Status())
	}
	return nil
}

func (s *OpenSearch) Write(ctx context.Context, doc relay.Document) error {
	body, err := json.Marshal(doc.Body)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	req := opensearchapi.IndexRequest{
		Index:   s.index,
		Body:    bytes.NewReader(body),
		Refresh: s.refresh,
	}
	if doc.Key != "" {
		// Position keys contain '/', which must not split the _doc path.
		req.DocumentID = url.PathEscape(doc.Key)
		req.OpType = "create"
	}

	res, err := req.Do(ctx, s.client.Client())
	if err != nil {
		return fmt.Errorf("indexing into %s: %w", s.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return fmt.Errorf("opensearch id %q: %w", doc.Key, apperrors.ErrDuplicateDocument)
	}
	if res.IsError() {
		return fmt.Errorf("indexing into %s: %s: %s", s.index, res.Status(), readBody(res.Body))
	}
	return nil
}

func (s *OpenSearch) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close is a no-op; the client holds only an HTTP transport.
func (s *OpenSearch) Close() error { return nil }

func readBody(r io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return b
}
