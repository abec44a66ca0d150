package textindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/highlight"
	htmlformat "github.com/blevesearch/bleve/v2/search/highlight/format/html"
	simplefragmenter "github.com/blevesearch/bleve/v2/search/highlight/fragmenter/simple"
	simplehighlighter "github.com/blevesearch/bleve/v2/search/highlight/highlighter/simple"
	"github.com/blevesearch/bleve/v2/search/query"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

const (
	backendBleve = "bleve"

	// EmHighlighterName wraps matches in <em></em>, like the OpenSearch backend.
	EmHighlighterName = "kb_em"

	deleteBatchSize = 1000
)

func init() {
	_ = registry.RegisterHighlighter(EmHighlighterName, emHighlighterConstructor)
}

func emHighlighterConstructor(_ map[string]interface{}, _ *registry.Cache) (highlight.Highlighter, error) {
	return simplehighlighter.NewHighlighter(
		simplefragmenter.NewFragmenter(HighlightFragmentSize),
		htmlformat.NewFragmentFormatter("<em>", "</em>"),
		simplehighlighter.DefaultSeparator,
	), nil
}

// BleveClient keeps one embedded bleve index per logical index name.
// With an empty dir every index lives in memory.
type BleveClient struct {
	mu      sync.Mutex
	dir     string
	indexes map[string]bleve.Index
	closed  bool
}

var _ Client = (*BleveClient)(nil)

// NewBleveClient returns a client storing indexes under dir.
func NewBleveClient(dir string) (*BleveClient, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, kberrors.New(kberrors.ErrCodeFileRead, fmt.Sprintf("failed to create bleve dir %s", dir), err)
		}
	}
	return &BleveClient{dir: dir, indexes: make(map[string]bleve.Index)}, nil
}

// newChunkMapping mirrors the OpenSearch mapping: keyword IDs, numeric
// index and flag, analyzed content.
func newChunkMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	for _, name := range []string{"chunkId", "kbId", "fileId", "contentHash"} {
		f := bleve.NewKeywordFieldMapping()
		doc.AddFieldMappingsAt(name, f)
	}
	for _, name := range []string{"chunkIndex", "contentLen", "deletedFlag", "createTime", "updateTime"} {
		doc.AddFieldMappingsAt(name, bleve.NewNumericFieldMapping())
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	doc.AddFieldMappingsAt("content", content)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = keyword.Name
	return im
}

// open returns the named index, creating it on first use. Callers hold mu.
func (c *BleveClient) open(name string) (bleve.Index, error) {
	if c.closed {
		return nil, fmt.Errorf("text index is closed")
	}
	if idx, ok := c.indexes[name]; ok {
		return idx, nil
	}
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return nil, kberrors.Validation("invalid index name %q", name)
	}

	var (
		idx bleve.Index
		err error
	)
	if c.dir == "" {
		idx, err = bleve.NewMemOnly(newChunkMapping())
	} else {
		idx, err = c.openOnDisk(filepath.Join(c.dir, name+".bleve"))
	}
	if err != nil {
		return nil, kberrors.Backend(backendBleve, fmt.Sprintf("failed to open index %s: %v", name, err), err)
	}

	c.indexes[name] = idx
	return idx, nil
}

func (c *BleveClient) openOnDisk(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, newChunkMapping())
	}
	if err != nil && isCorruptionError(err) {
		// the index is derived data; a rebuild restores it
		slog.Warn("bleve_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		slog.Info("bleve_index_cleared",
			slog.String("path", path),
			slog.String("reason", "open failed with corruption, reindex the library"))
		return bleve.New(path, newChunkMapping())
	}
	return idx, err
}

func isCorruptionError(err error) bool {
	msg := err.Error()
	return err == bleve.ErrorIndexMetaCorrupt ||
		strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment")
}

// BulkUpsert indexes docs in one batch, overwriting by ChunkID.
func (c *BleveClient) BulkUpsert(_ context.Context, index string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.open(index)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for i := range docs {
		if err := batch.Index(docs[i].ChunkID, docs[i].fields()); err != nil {
			return kberrors.Backend(backendBleve, fmt.Sprintf("failed to index document %s: %v", docs[i].ChunkID, err), err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return kberrors.Backend(backendBleve, fmt.Sprintf("failed to execute batch: %v", err), err)
	}
	return nil
}

// DeleteByQuery removes every document matching filter.
func (c *BleveClient) DeleteByQuery(ctx context.Context, index string, filter Filter) (int64, error) {
	if filter.Empty() {
		return 0, kberrors.Validation("delete by query requires a kbId or fileId filter")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.open(index)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for {
		req := bleve.NewSearchRequestOptions(deleteQuery(filter), deleteBatchSize, 0, false)
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return deleted, kberrors.Backend(backendBleve, fmt.Sprintf("delete query failed: %v", err), err)
		}
		if len(res.Hits) == 0 {
			break
		}

		batch := idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return deleted, kberrors.Backend(backendBleve, fmt.Sprintf("failed to delete documents: %v", err), err)
		}
		deleted += int64(len(res.Hits))
	}

	slog.Info("bleve_delete_by_query_ok",
		slog.String("index", index),
		slog.Int64("kb_id", filter.KbID),
		slog.Int64("file_id", filter.FileID),
		slog.Int64("deleted", deleted))
	return deleted, nil
}

// Refresh is a no-op: bleve batches are searchable once applied.
func (c *BleveClient) Refresh(_ context.Context, index string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.open(index)
	return err
}

// Search runs a match query on content over active documents.
func (c *BleveClient) Search(ctx context.Context, index string, req SearchRequest) (*SearchResult, error) {
	terms := strings.TrimSpace(req.Keyword)
	if terms == "" {
		return nil, kberrors.Validation("keyword is required")
	}

	c.mu.Lock()
	idx, err := c.open(index)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	match := bleve.NewMatchQuery(terms)
	match.SetField("content")

	sr := bleve.NewSearchRequestOptions(
		filterQuery(Filter{KbID: req.KbID, FileID: req.FileID}, true, match),
		req.Limit(), req.Offset(), false)
	sr.Fields = []string{"chunkId", "kbId", "fileId", "chunkIndex", "content"}
	sr.Highlight = bleve.NewHighlightWithStyle(EmHighlighterName)
	sr.Highlight.AddField("content")

	res, err := idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, kberrors.Backend(backendBleve, fmt.Sprintf("search failed: %v", err), err)
	}

	out := &SearchResult{Total: int64(res.Total), Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		hit := Hit{
			ChunkID: stringField(h.Fields, "chunkId"),
			KbID:    stringField(h.Fields, "kbId"),
			FileID:  stringField(h.Fields, "fileId"),
			Score:   h.Score,
		}
		if n, ok := h.Fields["chunkIndex"].(float64); ok {
			hit.ChunkIndex = int(n)
		}
		if frags := h.Fragments["content"]; len(frags) > 0 {
			hit.Highlight = frags[0]
		} else {
			hit.Highlight = fallbackHighlight(stringField(h.Fields, "content"))
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// Close closes every open index.
func (c *BleveClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for name, idx := range c.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close index %s: %w", name, err)
		}
	}
	c.indexes = nil
	return firstErr
}

// deleteQuery is filterQuery minus the excepted documents.
func deleteQuery(f Filter) query.Query {
	q := filterQuery(f, false, nil)
	if len(f.ExceptChunkIDs) == 0 {
		return q
	}
	b := bleve.NewBooleanQuery()
	b.AddMust(q)
	b.AddMustNot(bleve.NewDocIDQuery(f.ExceptChunkIDs))
	return b
}

// filterQuery conjoins term filters with an optional scoring query.
func filterQuery(f Filter, activeOnly bool, must query.Query) query.Query {
	var parts []query.Query
	if must != nil {
		parts = append(parts, must)
	}
	if activeOnly {
		one := 1.0
		inclusive := true
		q := bleve.NewNumericRangeInclusiveQuery(&one, &one, &inclusive, &inclusive)
		q.SetField("deletedFlag")
		parts = append(parts, q)
	}
	if f.KbID != 0 {
		q := bleve.NewTermQuery(formatID(f.KbID))
		q.SetField("kbId")
		parts = append(parts, q)
	}
	if f.FileID != 0 {
		q := bleve.NewTermQuery(formatID(f.FileID))
		q.SetField("fileId")
		parts = append(parts, q)
	}
	if len(parts) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(parts...)
}

// fields flattens d into the generic form bleve maps by field name. Keys
// follow the document's JSON names.
func (d Document) fields() map[string]any {
	return map[string]any{
		"chunkId":     d.ChunkID,
		"kbId":        d.KbID,
		"fileId":      d.FileID,
		"chunkIndex":  float64(d.ChunkIndex),
		"content":     d.Content,
		"contentHash": d.ContentHash,
		"contentLen":  float64(d.ContentLen),
		"deletedFlag": float64(d.DeletedFlag),
		"createTime":  float64(d.CreateTime),
		"updateTime":  float64(d.UpdateTime),
	}
}

func stringField(fields map[string]interface{}, name string) string {
	s, _ := fields[name].(string)
	return s
}
