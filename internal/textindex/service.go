package textindex

import (
	"context"
	"fmt"
	"log/slog"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

// DefaultBatchSize is the number of documents per bulk request during a
// library rebuild.
const DefaultBatchSize = 500

// Service rebuilds text index documents from the chunk store.
type Service struct {
	client    Client
	chunks    store.ChunkStore
	index     string
	batchSize int
}

// NewService returns a Service writing to the named index.
func NewService(client Client, chunks store.ChunkStore, index string, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{client: client, chunks: chunks, index: index, batchSize: batchSize}
}

// Index returns the name of the index the service writes to.
func (s *Service) Index() string {
	return s.index
}

// ReindexFile replaces the file's documents with its active chunks. The
// new documents are written first and only then are the file's other
// documents deleted, so a failed write leaves the previous generation
// searchable. A file without active chunks is left alone.
func (s *Service) ReindexFile(ctx context.Context, fileID int64) error {
	chunks, err := s.chunks.ListActiveChunksByFile(ctx, fileID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		slog.Info("text_reindex_file_no_chunks", slog.Int64("file_id", fileID))
		return nil
	}

	docs := toDocuments(chunks)
	if err := s.client.BulkUpsert(ctx, s.index, docs); err != nil {
		return err
	}

	keep := make([]string, len(docs))
	for i := range docs {
		keep[i] = docs[i].ChunkID
	}
	stale, err := s.client.DeleteByQuery(ctx, s.index, Filter{FileID: fileID, ExceptChunkIDs: keep})
	if err != nil {
		return err
	}

	slog.Info("text_reindex_file_ok",
		slog.Int64("file_id", fileID),
		slog.Int("docs", len(docs)),
		slog.Int64("stale_deleted", stale))
	return nil
}

// ReindexLibrary deletes every document of the library, re-sends all
// active chunks in batches and refreshes once. It returns the number of
// documents written.
func (s *Service) ReindexLibrary(ctx context.Context, kbID int64) (int, error) {
	if _, err := s.client.DeleteByQuery(ctx, s.index, Filter{KbID: kbID}); err != nil {
		return 0, err
	}

	chunks, err := s.chunks.ListActiveChunksByKb(ctx, kbID)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		if err := s.client.BulkUpsert(ctx, s.index, toDocuments(chunks[start:end])); err != nil {
			return written, fmt.Errorf("bulk batch at %d: %w", start, err)
		}
		written += end - start
	}

	if err := s.client.Refresh(ctx, s.index); err != nil {
		return written, err
	}

	slog.Info("text_reindex_library_ok",
		slog.Int64("kb_id", kbID),
		slog.Int("docs", written))
	return written, nil
}

// Search queries active chunks.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Keyword == "" {
		return nil, kberrors.Validation("keyword is required")
	}
	return s.client.Search(ctx, s.index, req)
}

func toDocuments(chunks []*store.Chunk) []Document {
	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = DocumentFromChunk(c)
	}
	return docs
}
