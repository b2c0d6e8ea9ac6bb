// Package opensearch builds an opensearch-go client from configuration and
// checks that the cluster answers before handing it out.
package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

type Client struct {
	client *opensearch.Client
}

func NewClient(ctx context.Context, cfg config.OpenSearchConfig) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}

	c := &Client{client: client}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Ping requests cluster info and fails on transport or HTTP errors.
func (c *Client) Ping(ctx context.Context) error {
	res, err := opensearchapi.InfoRequest{}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("pinging opensearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}

func (c *Client) Client() *opensearch.Client {
	return c.client
}
