package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

// ItemResult is the outcome of one file during a library rebuild.
type ItemResult struct {
	FileID   int64  `json:"fileId"`
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped"`
	Upserted int    `json:"upserted"`
	Message  string `json:"message,omitempty"`
}

// ServiceDependencies holds the collaborators of a Service.
type ServiceDependencies struct {
	Files     store.FileStore
	Libraries store.LibraryStore
	Chunks    store.ChunkStore
	Client    Client
	Guard     Guard

	// Concurrency bounds parallel file uploads during a library rebuild.
	// Values below 2 upload sequentially.
	Concurrency int
}

// Service builds vector payloads from stored chunks.
type Service struct {
	files       store.FileStore
	libraries   store.LibraryStore
	chunks      store.ChunkStore
	client      Client
	guard       Guard
	concurrency int
}

// NewService returns a Service.
func NewService(deps ServiceDependencies) *Service {
	if deps.Concurrency < 1 {
		deps.Concurrency = 1
	}
	return &Service{
		files:       deps.Files,
		libraries:   deps.Libraries,
		chunks:      deps.Chunks,
		client:      deps.Client,
		guard:       deps.Guard.withDefaults(),
		concurrency: deps.Concurrency,
	}
}

// Upsert is the outcome of one file upload. Skipped holds the reason the
// file was not sent; it is empty when the request went out.
type Upsert struct {
	Count   int
	Skipped string
}

// UpsertFile sends the file's active chunks to the vector service and
// returns the service's upsert count. A missing file or library, a file
// that has not parsed successfully, or a file with no chunks is skipped
// silently with a zero count.
func (s *Service) UpsertFile(ctx context.Context, fileID int64) (int, error) {
	u, err := s.upsert(ctx, fileID, store.ParseSuccess)
	return u.Count, err
}

// UpsertParsedFile is UpsertFile for the worker's index step, which runs
// while the file is still PARSING. PARSING and SUCCESS files are sent; the
// skip reason of any other outcome is returned so the caller can report it.
func (s *Service) UpsertParsedFile(ctx context.Context, fileID int64) (Upsert, error) {
	return s.upsert(ctx, fileID, store.ParseParsing, store.ParseSuccess)
}

func (s *Service) upsert(ctx context.Context, fileID int64, accept ...store.ParseStatus) (Upsert, error) {
	file, err := s.files.GetFile(ctx, fileID)
	if kberrors.IsNotFound(err) {
		return skipped(fileID, 0, "file not found"), nil
	}
	if err != nil {
		return Upsert{}, err
	}
	if !slices.Contains(accept, file.ParseStatus) {
		return skipped(fileID, file.KbID, "parse status "+string(file.ParseStatus)), nil
	}

	lib, err := s.libraries.GetLibrary(ctx, file.KbID)
	if kberrors.IsNotFound(err) {
		return skipped(fileID, file.KbID, "library not found"), nil
	}
	if err != nil {
		return Upsert{}, err
	}

	chunks, err := s.chunks.ListActiveChunksByFile(ctx, fileID)
	if err != nil {
		return Upsert{}, err
	}
	if len(chunks) == 0 {
		return skipped(fileID, file.KbID, "no chunks"), nil
	}

	stats := Stats(chunks)
	slog.Info("vector_payload_stats",
		slog.Int64("kb_id", lib.ID),
		slog.Int64("file_id", fileID),
		slog.Int("chunks", stats.Chunks),
		slog.Int("chars", stats.Chars),
		slog.Int("max_chunks", s.guard.MaxChunks),
		slog.Int("max_chars", s.guard.MaxChars),
		slog.String("strategy", string(s.guard.Strategy)))

	kept, err := s.guard.Apply(chunks)
	if err != nil {
		return Upsert{}, err
	}
	if len(kept) < len(chunks) {
		keptStats := Stats(kept)
		slog.Warn("vector_payload_truncated",
			slog.Int64("kb_id", lib.ID),
			slog.Int64("file_id", fileID),
			slog.Int("kept_chunks", keptStats.Chunks),
			slog.Int("kept_chars", keptStats.Chars))
	}

	req := &Request{
		KbID:              lib.ID,
		FileID:            fileID,
		VectorIndexConfig: lib.VectorConfig,
		Chunks:            make([]ChunkItem, len(kept)),
	}
	for i, c := range kept {
		req.Chunks[i] = ChunkItem{ChunkID: c.ID, ChunkIndex: c.ChunkIndex, Content: c.Content}
	}

	resp, err := s.client.ReindexFile(ctx, req)
	if err != nil {
		return Upsert{}, err
	}

	slog.Info("vector_upsert_ok",
		slog.Int64("kb_id", lib.ID),
		slog.Int64("file_id", fileID),
		slog.Int("upsert_count", resp.UpsertCount))
	return Upsert{Count: resp.UpsertCount}, nil
}

func skipped(fileID, kbID int64, reason string) Upsert {
	slog.Warn("vector_upsert_skipped",
		slog.Int64("file_id", fileID),
		slog.Int64("kb_id", kbID),
		slog.String("reason", reason))
	return Upsert{Skipped: reason}
}

// ReindexLibrary uploads every successfully parsed file of the library.
// Other files are reported as skipped. A failing file does not stop the
// rest. Results follow the library's file order.
func (s *Service) ReindexLibrary(ctx context.Context, kbID int64) ([]ItemResult, error) {
	files, err := s.files.ListFilesByKb(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		slog.Info("vector_reindex_library_empty", slog.Int64("kb_id", kbID))
		return nil, nil
	}

	pool, err := ants.NewPool(s.concurrency)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeInternal, err)
	}
	defer pool.Release()

	results := make([]ItemResult, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		results[i].FileID = f.ID
		if f.ParseStatus != store.ParseSuccess {
			results[i].Skipped = true
			results[i].Message = "parse status " + string(f.ParseStatus)
			continue
		}

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			s.upsertInto(ctx, kbID, f.ID, &results[i])
		}); err != nil {
			wg.Done()
			results[i].Message = fmt.Sprintf("submit failed: %v", err)
		}
	}
	wg.Wait()

	eligible, failed := 0, 0
	for _, r := range results {
		if !r.Skipped {
			eligible++
			if !r.OK {
				failed++
			}
		}
	}
	slog.Info("vector_reindex_library_done",
		slog.Int64("kb_id", kbID),
		slog.Int("files", len(files)),
		slog.Int("eligible", eligible),
		slog.Int("failed", failed))
	return results, nil
}

func (s *Service) upsertInto(ctx context.Context, kbID, fileID int64, out *ItemResult) {
	n, err := s.UpsertFile(ctx, fileID)
	if err != nil {
		attrs := append([]any{slog.Int64("kb_id", kbID), slog.Int64("file_id", fileID)}, kberrors.LogAttrs(err)...)
		slog.Error("vector_reindex_file_failed", attrs...)
		out.Message = err.Error()
		return
	}
	out.OK = true
	out.Upserted = n
}
