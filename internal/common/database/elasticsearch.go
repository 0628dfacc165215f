// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"

	"followup-engine/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// ESClient wraps the Elasticsearch client used by the audit sink.
type ESClient struct {
	Client *elasticsearch.Client
}

// NewElasticsearch creates a new Elasticsearch client
func NewElasticsearch(cfg config.ElasticsearchConfig) (*ESClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ESClient{Client: es}, nil
}

// Ping tests the Elasticsearch connection
func (c *ESClient) Ping(ctx context.Context) error {
	res, err := c.Client.Info(c.Client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.String())
	}
	return nil
}
