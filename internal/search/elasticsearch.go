package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/pkg/errors"

	"example.com/safegear/services/ppe/config"
	"example.com/safegear/services/ppe/internal/model"
)

// Client indexes delivery documents for the listing/search surface.
// Indexing is best-effort; callers log failures and move on.
type Client interface {
	IndexDelivery(ctx context.Context, delivery *model.Delivery) error
	SearchDeliveries(ctx context.Context, query map[string]interface{}) ([]json.RawMessage, error)
}

// esClient implements Client against Elasticsearch
type esClient struct {
	client *elasticsearch.Client
	index  string
}

// noopClient is used when search is disabled by configuration
type noopClient struct{}

func (noopClient) IndexDelivery(ctx context.Context, delivery *model.Delivery) error { return nil }
func (noopClient) SearchDeliveries(ctx context.Context, query map[string]interface{}) ([]json.RawMessage, error) {
	return nil, errors.New("search is disabled")
}

// NewClient creates a new Elasticsearch client
func NewClient(cfg *config.ElasticsearchConfig) (Client, error) {
	if !cfg.Enabled {
		return noopClient{}, nil
	}

	esCfg := elasticsearch.Config{
		Addresses: cfg.URLs,
	}
	if cfg.Username != "" && cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	res, err := client.Info()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Elasticsearch")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.Errorf("Elasticsearch error: %s", res.String())
	}

	return &esClient{
		client: client,
		index:  cfg.Index,
	}, nil
}

// IndexDelivery indexes a delivery document
func (c *esClient) IndexDelivery(ctx context.Context, delivery *model.Delivery) error {
	doc := map[string]interface{}{
		"id":           delivery.ID.String(),
		"worker_id":    delivery.WorkerID.String(),
		"item_id":      delivery.ItemID.String(),
		"quantity":     delivery.Quantity,
		"status":       delivery.Status,
		"status_order": delivery.StatusOrder,
		"created_at":   delivery.CreatedAt,
	}
	if delivery.Worker != nil {
		doc["worker_name"] = delivery.Worker.Name
	}
	if delivery.Item != nil {
		doc["item_name"] = delivery.Item.Name
		doc["item_ca_number"] = delivery.Item.CANumber
	}
	if delivery.ScheduledDate != nil {
		doc["scheduled_date"] = delivery.ScheduledDate
	}
	if delivery.ActualDeliveryDate != nil {
		doc["actual_delivery_date"] = delivery.ActualDeliveryDate
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal delivery document")
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: delivery.ID.String(),
		Body:       bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("Elasticsearch index error: %s", res.String())
	}
	return nil
}

// SearchDeliveries runs a raw query against the delivery index
func (c *esClient) SearchDeliveries(ctx context.Context, query map[string]interface{}) ([]json.RawMessage, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("Elasticsearch search error: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	docs := make([]json.RawMessage, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}
