// Package vectorindex pushes a file's chunks to the remote embedding
// service, which embeds and stores them on its side.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/pkg/version"
)

const (
	backendVector = "vector"

	// DefaultReindexPath is the service's file reindex endpoint.
	DefaultReindexPath = "/kb/vector/reindexFile"
)

// ChunkItem is one chunk sent for embedding.
type ChunkItem struct {
	ChunkID    int64  `json:"chunkId"`
	ChunkIndex int    `json:"chunkIndex"`
	Content    string `json:"content"`
}

// Request replaces the vectors of one file.
type Request struct {
	KbID              int64       `json:"kbId"`
	FileID            int64       `json:"fileId"`
	VectorIndexConfig string      `json:"vectorIndexConfig"`
	Chunks            []ChunkItem `json:"chunks"`
}

// Response is the service's reply.
type Response struct {
	Success     *bool  `json:"success"`
	Message     string `json:"message"`
	UpsertCount int    `json:"upsertCount"`
}

// Client sends file reindex requests.
type Client interface {
	ReindexFile(ctx context.Context, req *Request) (*Response, error)
}

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	BaseURL     string
	ReindexPath string
	Timeout     time.Duration
	MaxRetries  int
}

// HTTPClient is the JSON-over-HTTP Client.
type HTTPClient struct {
	url     string
	client  *http.Client
	retry   kberrors.RetryConfig
	breaker *kberrors.CircuitBreaker
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, kberrors.ConfigError("vector_index.base_url is not configured", nil)
	}
	if cfg.ReindexPath == "" {
		cfg.ReindexPath = DefaultReindexPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	retry := kberrors.DefaultRetryConfig()
	if cfg.MaxRetries >= 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	return &HTTPClient{
		url:     JoinURL(cfg.BaseURL, cfg.ReindexPath),
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   retry,
		breaker: kberrors.NewCircuitBreaker(backendVector),
	}, nil
}

// JoinURL joins base and path with exactly one slash between them.
func JoinURL(base, path string) string {
	b := strings.TrimRight(strings.TrimSpace(base), "/")
	p := strings.TrimLeft(strings.TrimSpace(path), "/")
	return b + "/" + p
}

// URL returns the endpoint the client posts to.
func (c *HTTPClient) URL() string {
	return c.url
}

// ReindexFile posts req. A non-2xx status, an empty body or a reply
// without success=true is a backend error.
func (c *HTTPClient) ReindexFile(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeInternal, err)
	}

	resp, err := kberrors.CircuitExecute(c.breaker, func() (*Response, error) {
		return kberrors.RetryWithResult(ctx, c.retry, func() (*Response, error) {
			return c.post(ctx, body)
		})
	})
	if err != nil {
		return nil, err
	}

	if resp.Success == nil || !*resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "no message"
		}
		ke := kberrors.Backend(backendVector, "vector reindexFile failed: "+msg, nil)
		ke.Retryable = false
		return nil, ke
	}
	return resp, nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, kberrors.Backend(backendVector, fmt.Sprintf("vector service request failed: %v", err), err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, kberrors.Backend(backendVector, fmt.Sprintf("vector service read failed: %v", err), err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		slog.Error("vector_call_failed",
			slog.String("url", c.url),
			slog.Int("status", httpResp.StatusCode),
			slog.String("body", truncate(string(data), 1024)))
		ke := kberrors.Backend(backendVector,
			fmt.Sprintf("vector service returned HTTP %d", httpResp.StatusCode), nil).
			WithDetail("status", fmt.Sprint(httpResp.StatusCode))
		if httpResp.StatusCode < 500 && httpResp.StatusCode != http.StatusTooManyRequests {
			ke.Retryable = false
		}
		return nil, ke
	}

	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, kberrors.Backend(backendVector, "vector service returned an empty body", nil)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		ke := kberrors.Backend(backendVector, fmt.Sprintf("vector service returned invalid JSON: %v", err), err)
		ke.Retryable = false
		return nil, ke
	}
	return &resp, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
