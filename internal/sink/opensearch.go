// Package sink copies sealed blocks into secondary systems: a search index
// and an object-store archive.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/models"
)

// DefaultIndex is the index sealed events are written to.
const DefaultIndex = "audit-events"

const indexMapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 0},
  "mappings": {
    "properties": {
      "event_id":        {"type": "keyword"},
      "event_type":      {"type": "keyword"},
      "timestamp":       {"type": "date"},
      "user_id":         {"type": "keyword"},
      "agent_id":        {"type": "keyword"},
      "entity_id":       {"type": "keyword"},
      "description":     {"type": "text"},
      "severity":        {"type": "keyword"},
      "ip_address":      {"type": "keyword"},
      "user_agent":      {"type": "text"},
      "compliance_tags": {"type": "keyword"},
      "details":         {"type": "flattened"},
      "block_number":    {"type": "long"},
      "block_hash":      {"type": "keyword"}
    }
  }
}`

// indexedEvent is the document stored per event.
type indexedEvent struct {
	models.AuditEvent
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
}

// OpenSearchIndexer indexes every event of a sealed block for search.
type OpenSearchIndexer struct {
	client *opensearch.Client
	index  string
	log    *logrus.Logger
}

// NewOpenSearchIndexer creates an indexer for the cluster at address.
func NewOpenSearchIndexer(address string, log *logrus.Logger) (*OpenSearchIndexer, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:     []string{address},
		RetryOnStatus: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests},
		RetryBackoff:  func(i int) time.Duration { return time.Duration(i) * time.Second },
		MaxRetries:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("opensearch: creating client: %w", err)
	}

	return &OpenSearchIndexer{client: client, index: DefaultIndex, log: log}, nil
}

// Name identifies the sink in logs and metrics.
func (x *OpenSearchIndexer) Name() string { return "opensearch" }

// EnsureIndex creates the index with its mapping unless it already exists.
func (x *OpenSearchIndexer) EnsureIndex(ctx context.Context) error {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{x.index}}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("opensearch: checking index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return responseError("checking index", res)
	}

	created, err := opensearchapi.IndicesCreateRequest{
		Index: x.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("opensearch: creating index: %w", err)
	}
	defer created.Body.Close()

	if created.IsError() {
		return responseError("creating index", created)
	}

	x.log.WithField("index", x.index).Info("opensearch.index_created")

	return nil
}

// WriteBlock bulk-indexes the block's events keyed by event id, so retries
// overwrite rather than duplicate.
func (x *OpenSearchIndexer) WriteBlock(ctx context.Context, b *models.Block) error {
	if len(b.Events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for i := range b.Events {
		meta := map[string]map[string]string{
			"index": {"_index": x.index, "_id": b.Events[i].EventID},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("opensearch: encoding bulk meta: %w", err)
		}

		doc := indexedEvent{AuditEvent: b.Events[i], BlockNumber: b.BlockNumber, BlockHash: b.BlockHash}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("opensearch: encoding event %s: %w", b.Events[i].EventID, err)
		}
	}

	res, err := opensearchapi.BulkRequest{Body: &buf}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("opensearch: bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("bulk request", res)
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string `json:"_id"`
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("opensearch: decoding bulk response: %w", err)
	}

	if result.Errors {
		failed := 0
		var first string
		for _, item := range result.Items {
			for _, op := range item {
				if op.Error != nil {
					failed++
					if first == "" {
						first = fmt.Sprintf("%s: %s %s", op.ID, op.Error.Type, op.Error.Reason)
					}
				}
			}
		}
		return fmt.Errorf("opensearch: %d of %d events failed to index, first %s", failed, len(b.Events), first)
	}

	x.log.WithFields(logrus.Fields{
		"block_number": b.BlockNumber,
		"events":       len(b.Events),
	}).Debug("opensearch.block_indexed")

	return nil
}

func responseError(op string, res *opensearchapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096)) //nolint:errcheck // body is diagnostic only.
	return fmt.Errorf("opensearch: %s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
}
