// Package textindex keeps a keyword search index of chunk text in sync
// with the chunk store.
//
// Two backends implement Client: an OpenSearch-compatible HTTP backend
// and a local embedded bleve index. Both store one document per active
// chunk, keyed by the chunk ID.
package textindex

import (
	"context"
	"strconv"

	"github.com/Aman-CERP/amankb/internal/store"
)

// HighlightFragmentSize bounds a hit's highlight, in characters.
const HighlightFragmentSize = 150

// Document is the indexed form of one chunk. IDs are decimal strings so
// term filters behave the same in every backend.
type Document struct {
	ChunkID     string `json:"chunkId"`
	KbID        string `json:"kbId"`
	FileID      string `json:"fileId"`
	ChunkIndex  int    `json:"chunkIndex"`
	Content     string `json:"content"`
	ContentHash string `json:"contentHash"`
	ContentLen  int    `json:"contentLen"`
	DeletedFlag int    `json:"deletedFlag"`
	CreateTime  int64  `json:"createTime"`
	UpdateTime  int64  `json:"updateTime"`
}

// DocumentFromChunk converts a stored chunk.
func DocumentFromChunk(c *store.Chunk) Document {
	flag := 0
	if c.Active {
		flag = 1
	}
	return Document{
		ChunkID:     formatID(c.ID),
		KbID:        formatID(c.KbID),
		FileID:      formatID(c.FileID),
		ChunkIndex:  c.ChunkIndex,
		Content:     c.Content,
		ContentHash: c.ContentHash,
		ContentLen:  c.ContentLen,
		DeletedFlag: flag,
		CreateTime:  c.CreateTime.UnixMilli(),
		UpdateTime:  c.UpdateTime.UnixMilli(),
	}
}

// Filter selects documents by library and/or file. Zero fields are unset.
type Filter struct {
	KbID   int64
	FileID int64

	// ExceptChunkIDs are kept even when they match. Only DeleteByQuery
	// honors it.
	ExceptChunkIDs []string
}

// Empty reports whether the filter would match every document.
func (f Filter) Empty() bool {
	return f.KbID == 0 && f.FileID == 0
}

// SearchRequest is a keyword query over active chunks.
type SearchRequest struct {
	Keyword  string `json:"keyword"`
	KbID     int64  `json:"kbId,omitempty"`
	FileID   int64  `json:"fileId,omitempty"`
	PageNum  int    `json:"pageNum"`
	PageSize int    `json:"pageSize"`
}

// Offset returns the zero-based index of the first hit on the page.
// Page numbers start at 1; non-positive page or size values are treated as 1.
func (r SearchRequest) Offset() int {
	return (max(1, r.PageNum) - 1) * r.Limit()
}

// Limit returns the page size, at least 1.
func (r SearchRequest) Limit() int {
	return max(1, r.PageSize)
}

// Hit is one matching chunk.
type Hit struct {
	ChunkID    string  `json:"chunkId"`
	KbID       string  `json:"kbId"`
	FileID     string  `json:"fileId"`
	ChunkIndex int     `json:"chunkIndex"`
	Highlight  string  `json:"highlight"`
	Score      float64 `json:"score"`
}

// SearchResult is one page of hits plus the total match count.
type SearchResult struct {
	Total int64 `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Client is a text search backend.
type Client interface {
	// BulkUpsert writes docs, overwriting any document with the same ChunkID.
	BulkUpsert(ctx context.Context, index string, docs []Document) error

	// DeleteByQuery removes every document matching filter and returns the
	// number deleted.
	DeleteByQuery(ctx context.Context, index string, filter Filter) (int64, error)

	// Refresh makes recent writes visible to search.
	Refresh(ctx context.Context, index string) error

	// Search runs a keyword query over active documents.
	Search(ctx context.Context, index string, req SearchRequest) (*SearchResult, error)

	Close() error
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// fallbackHighlight returns the first HighlightFragmentSize characters of content.
func fallbackHighlight(content string) string {
	n := 0
	for i := range content {
		if n == HighlightFragmentSize {
			return content[:i]
		}
		n++
	}
	return content
}
