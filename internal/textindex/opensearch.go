package textindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/pkg/version"
)

const backendOpenSearch = "opensearch"

// OpenSearchConfig configures the HTTP backend.
type OpenSearchConfig struct {
	URL        string
	Username   string
	Password   string
	Timeout    time.Duration
	MaxRetries int
}

// OpenSearchClient talks to an OpenSearch-compatible REST API.
type OpenSearchClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	retry    kberrors.RetryConfig
	breaker  *kberrors.CircuitBreaker
}

var _ Client = (*OpenSearchClient)(nil)

// NewOpenSearchClient validates cfg and returns a client.
func NewOpenSearchClient(cfg OpenSearchConfig) (*OpenSearchClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, kberrors.ConfigError("text_index.url is not configured", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, kberrors.ConfigError("text_index.url is invalid", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	retry := kberrors.DefaultRetryConfig()
	if cfg.MaxRetries >= 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	return &OpenSearchClient{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: cfg.Timeout},
		retry:    retry,
		breaker:  kberrors.NewCircuitBreaker(backendOpenSearch),
	}, nil
}

type bulkAction struct {
	Index struct {
		ID string `json:"_id"`
	} `json:"index"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkUpsert sends docs as one NDJSON _bulk request. Any failed item
// fails the whole call.
func (c *OpenSearchClient) BulkUpsert(ctx context.Context, index string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for i := range docs {
		var action bulkAction
		action.Index.ID = docs[i].ChunkID
		if err := enc.Encode(action); err != nil {
			return kberrors.Wrap(kberrors.ErrCodeInternal, err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return kberrors.Wrap(kberrors.ErrCodeInternal, err)
		}
	}

	var resp bulkResponse
	if err := c.call(ctx, "bulk", "/"+url.PathEscape(index)+"/_bulk", "application/x-ndjson", body.Bytes(), &resp); err != nil {
		return err
	}
	if resp.Errors {
		failed, first := 0, ""
		for _, item := range resp.Items {
			for _, r := range item {
				if r.Error == nil {
					continue
				}
				failed++
				if first == "" {
					first = fmt.Sprintf("%s: %s %s", r.ID, r.Error.Type, r.Error.Reason)
				}
			}
		}
		slog.Error("opensearch_bulk_partial_failure",
			slog.String("index", index),
			slog.Int("docs", len(docs)),
			slog.Int("failed", failed),
			slog.String("first_error", first))
		return kberrors.New(kberrors.ErrCodeBackendPartial,
			fmt.Sprintf("opensearch bulk partially failed (%d of %d items): %s", failed, len(docs), first), nil).
			WithDetail("backend", backendOpenSearch)
	}

	slog.Debug("opensearch_bulk_ok", slog.String("index", index), slog.Int("docs", len(docs)))
	return nil
}

// DeleteByQuery deletes documents matching filter, refreshing the index
// afterwards. An empty filter is rejected.
func (c *OpenSearchClient) DeleteByQuery(ctx context.Context, index string, filter Filter) (int64, error) {
	if filter.Empty() {
		return 0, kberrors.Validation("delete by query requires a kbId or fileId filter")
	}

	boolQuery := map[string]any{"filter": termFilters(filter, false)}
	if len(filter.ExceptChunkIDs) > 0 {
		boolQuery["must_not"] = []any{map[string]any{"ids": map[string]any{"values": filter.ExceptChunkIDs}}}
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": boolQuery},
	})
	if err != nil {
		return 0, kberrors.Wrap(kberrors.ErrCodeInternal, err)
	}

	var resp struct {
		Total   int64 `json:"total"`
		Deleted int64 `json:"deleted"`
	}
	path := "/" + url.PathEscape(index) + "/_delete_by_query?conflicts=proceed&refresh=true"
	if err := c.call(ctx, "delete_by_query", path, "application/json", body, &resp); err != nil {
		return 0, err
	}

	slog.Info("opensearch_delete_by_query_ok",
		slog.String("index", index),
		slog.Int64("kb_id", filter.KbID),
		slog.Int64("file_id", filter.FileID),
		slog.Int64("total", resp.Total),
		slog.Int64("deleted", resp.Deleted))
	return resp.Deleted, nil
}

// Refresh calls _refresh on index.
func (c *OpenSearchClient) Refresh(ctx context.Context, index string) error {
	if err := c.call(ctx, "refresh", "/"+url.PathEscape(index)+"/_refresh", "application/json", []byte("{}"), nil); err != nil {
		return err
	}
	slog.Info("opensearch_refresh_ok", slog.String("index", index))
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    Document            `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a match query on content filtered to active documents.
func (c *OpenSearchClient) Search(ctx context.Context, index string, req SearchRequest) (*SearchResult, error) {
	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		return nil, kberrors.Validation("keyword is required")
	}

	body, err := json.Marshal(map[string]any{
		"from": req.Offset(),
		"size": req.Limit(),
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{map[string]any{"match": map[string]any{"content": keyword}}},
				"filter": termFilters(Filter{KbID: req.KbID, FileID: req.FileID}, true),
			},
		},
		"highlight": map[string]any{
			"pre_tags":  []string{"<em>"},
			"post_tags": []string{"</em>"},
			"fields": map[string]any{
				"content": map[string]any{
					"fragment_size":       HighlightFragmentSize,
					"number_of_fragments": 1,
				},
			},
		},
	})
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeInternal, err)
	}

	var resp searchResponse
	if err := c.call(ctx, "search", "/"+url.PathEscape(index)+"/_search", "application/json", body, &resp); err != nil {
		return nil, err
	}

	result := &SearchResult{Total: resp.Hits.Total.Value, Hits: make([]Hit, 0, len(resp.Hits.Hits))}
	for _, h := range resp.Hits.Hits {
		hit := Hit{
			ChunkID:    h.Source.ChunkID,
			KbID:       h.Source.KbID,
			FileID:     h.Source.FileID,
			ChunkIndex: h.Source.ChunkIndex,
			Score:      h.Score,
		}
		if frags := h.Highlight["content"]; len(frags) > 0 {
			hit.Highlight = frags[0]
		} else {
			hit.Highlight = fallbackHighlight(h.Source.Content)
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// Close releases idle connections.
func (c *OpenSearchClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func termFilters(f Filter, activeOnly bool) []any {
	var terms []any
	if activeOnly {
		terms = append(terms, map[string]any{"term": map[string]any{"deletedFlag": 1}})
	}
	if f.KbID != 0 {
		terms = append(terms, map[string]any{"term": map[string]any{"kbId": formatID(f.KbID)}})
	}
	if f.FileID != 0 {
		terms = append(terms, map[string]any{"term": map[string]any{"fileId": formatID(f.FileID)}})
	}
	return terms
}

// call POSTs body to path through the breaker and retry policy and decodes
// a JSON response into out when out is non-nil.
func (c *OpenSearchClient) call(ctx context.Context, op, path, contentType string, body []byte, out any) error {
	return c.breaker.Execute(func() error {
		return kberrors.Retry(ctx, c.retry, func() error {
			return c.post(ctx, op, path, contentType, body, out)
		})
	})
}

func (c *OpenSearchClient) post(ctx context.Context, op, path, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return kberrors.Wrap(kberrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return kberrors.Backend(backendOpenSearch, fmt.Sprintf("opensearch %s request failed: %v", op, err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return kberrors.Backend(backendOpenSearch, fmt.Sprintf("opensearch %s read failed: %v", op, err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ke := kberrors.Backend(backendOpenSearch,
			fmt.Sprintf("opensearch %s failed: HTTP %d: %s", op, resp.StatusCode, snippet(data)), nil).
			WithDetail("status", fmt.Sprint(resp.StatusCode))
		// client errors will not succeed on retry
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			ke.Retryable = false
		}
		return ke
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		ke := kberrors.Backend(backendOpenSearch, fmt.Sprintf("opensearch %s returned invalid JSON: %v", op, err), err)
		ke.Retryable = false
		return ke
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
