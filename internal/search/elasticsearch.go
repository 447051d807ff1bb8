package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/airlogistic/config"
)

// Indexer projects entities into a search index for reporting. Indexing is
// fire-and-forget on write; services log failures and continue.
type Indexer interface {
	IndexEntity(ctx context.Context, kind, id string, doc interface{}) error
	DeleteEntity(ctx context.Context, kind, id string) error
}

// ElasticClient implements Indexer over Elasticsearch
type ElasticClient struct {
	client  *elasticsearch.Client
	config  config.ElasticConfig
	enabled bool
}

// NewElasticClient creates a new Elasticsearch client. Disabled config
// yields a no-op indexer.
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return &ElasticClient{enabled: false}, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{client: client, config: cfg, enabled: true}, nil
}

// IndexEntity indexes a full entity document, replacing any prior version.
func (c *ElasticClient) IndexEntity(ctx context.Context, kind, id string, doc interface{}) error {
	if !c.enabled {
		return nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, kind),
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to index document")
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index request failed: %s", res.String())
	}

	log.Debug().Str("kind", kind).Str("id", id).Msg("indexed entity")
	return nil
}

// DeleteEntity removes an entity document from the index.
func (c *ElasticClient) DeleteEntity(ctx context.Context, kind, id string) error {
	if !c.enabled {
		return nil
	}

	req := esapi.DeleteRequest{
		Index:      config.FormatIndex(c.config, kind),
		DocumentID: id,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete request failed: %s", res.String())
	}

	return nil
}
