package opensearch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mstgnz/paygate/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const indexPrefix = "paygate"

// Client wraps the OpenSearch client
type Client struct {
	client *opensearch.Client
	config *config.AppConfig
}

// NewClient creates a new OpenSearch client. Indices are only prepared when logging is enabled.
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses:     []string{cfg.OpenSearchURL},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client: client,
		config: cfg,
	}

	if cfg.EnableLogging {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := osClient.setupIndices(ctx, "phonepe"); err != nil {
			log.Printf("Warning: Failed to setup OpenSearch indices: %v", err)
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// setupIndices creates the gateway call log index for each provider
func (c *Client) setupIndices(ctx context.Context, providers ...string) error {
	var failed []string
	for _, provider := range providers {
		indexName := c.GetLogIndexName(provider)

		exists, err := c.indexExists(ctx, indexName)
		if err != nil {
			log.Printf("Error checking index %s: %v", indexName, err)
			failed = append(failed, indexName)
			continue
		}
		if exists {
			continue
		}

		if err := c.createLogIndex(ctx, indexName); err != nil {
			log.Printf("Error creating index %s: %v", indexName, err)
			failed = append(failed, indexName)
			continue
		}
		log.Printf("Created OpenSearch index: %s", indexName)
	}

	if len(failed) > 0 {
		return fmt.Errorf("could not prepare indices: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == 200, nil
}

const logIndexMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"provider": {"type": "keyword"},
			"operation": {"type": "keyword"},
			"method": {"type": "keyword"},
			"endpoint": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"user_agent": {"type": "text"},
			"client_ip": {"type": "ip"},
			"request": {
				"type": "object",
				"properties": {
					"headers": {"type": "object"},
					"body": {"type": "text"}
				}
			},
			"response": {
				"type": "object",
				"properties": {
					"status_code": {"type": "integer"},
					"body": {"type": "text"},
					"processing_time_ms": {"type": "integer"}
				}
			},
			"payment_info": {
				"type": "object",
				"properties": {
					"merchant_order_id": {"type": "keyword"},
					"gateway_order_id": {"type": "keyword"},
					"amount_paise": {"type": "long"},
					"state": {"type": "keyword"},
					"auth_mode": {"type": "keyword"},
					"dry_run": {"type": "boolean"},
					"retried": {"type": "boolean"},
					"fallback": {"type": "boolean"}
				}
			},
			"error": {
				"type": "object",
				"properties": {
					"code": {"type": "keyword"},
					"message": {"type": "text"}
				}
			}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`

func (c *Client) createLogIndex(ctx context.Context, indexName string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(logIndexMapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	return nil
}

// GetLogIndexName returns the index name for a provider's gateway call logs
func (c *Client) GetLogIndexName(provider string) string {
	return indexPrefix + "-" + provider + "-logs"
}

// SystemIndexName is where SystemLogger entries are indexed
func (c *Client) SystemIndexName() string {
	return indexPrefix + "-system-logs"
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.config.EnableLogging
}
