package vectorindex

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/chunk"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
)

type fakeClient struct {
	mu      sync.Mutex
	reqs    []*Request
	failFor map[int64]bool
}

func (f *fakeClient) ReindexFile(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.failFor[req.FileID] {
		return nil, kberrors.Backend("vector", "service down", errors.New("connection refused"))
	}
	ok := true
	return &Response{Success: &ok, UpsertCount: len(req.Chunks)}, nil
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addFile(t *testing.T, s *store.SQLiteStore, kbID int64, status store.ParseStatus, texts ...string) *store.File {
	t.Helper()
	ctx := context.Background()
	f := &store.File{KbID: kbID, FileName: "f.txt", StoragePath: "f.txt", ParseStatus: status}
	require.NoError(t, s.CreateFile(ctx, f))
	if len(texts) > 0 {
		pieces := make([]chunk.Piece, len(texts))
		for i, txt := range texts {
			pieces[i] = chunk.Piece{ChunkIndex: i, Content: txt}
		}
		_, err := s.ReplaceChunks(ctx, kbID, f.ID, pieces, 0)
		require.NoError(t, err)
	}
	return f
}

func newService(s *store.SQLiteStore, client Client, concurrency int) *Service {
	return NewService(ServiceDependencies{
		Files: s, Libraries: s, Chunks: s, Client: client,
		Guard: DefaultGuard(), Concurrency: concurrency,
	})
}

func TestService_UpsertFileSendsChunksAndConfig(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	lib := &store.Library{Name: "kb", IndexMode: store.ModeVector, VectorConfig: `{"dim":1024}`}
	require.NoError(t, s.CreateLibrary(ctx, lib))
	f := addFile(t, s, lib.ID, store.ParseSuccess, "first chunk", "second chunk")
	client := &fakeClient{}

	n, err := newService(s, client, 1).UpsertFile(ctx, f.ID)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, client.reqs, 1)
	req := client.reqs[0]
	assert.Equal(t, lib.ID, req.KbID)
	assert.Equal(t, `{"dim":1024}`, req.VectorIndexConfig)
	assert.Equal(t, "second chunk", req.Chunks[1].Content)
	assert.Equal(t, 1, req.Chunks[1].ChunkIndex)
}

func TestService_UpsertFileSilentSkips(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	lib := &store.Library{Name: "kb"}
	require.NoError(t, s.CreateLibrary(ctx, lib))

	pending := addFile(t, s, lib.ID, store.ParsePending, "text")
	noChunks := addFile(t, s, lib.ID, store.ParseSuccess)
	orphan := addFile(t, s, lib.ID+100, store.ParseSuccess, "text")

	tests := []struct {
		name   string
		fileID int64
	}{
		{"missing file", 9999},
		{"not parsed", pending.ID},
		{"no chunks", noChunks.ID},
		{"missing library", orphan.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			n, err := newService(s, client, 1).UpsertFile(ctx, tt.fileID)
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Empty(t, client.reqs)
		})
	}
}

func TestService_UpsertParsedFile(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	lib := &store.Library{Name: "kb"}
	require.NoError(t, s.CreateLibrary(ctx, lib))

	parsing := addFile(t, s, lib.ID, store.ParseParsing, "fresh text")
	parsed := addFile(t, s, lib.ID, store.ParseSuccess, "old text")
	failed := addFile(t, s, lib.ID, store.ParseFailed, "text")
	noChunks := addFile(t, s, lib.ID, store.ParseParsing)

	tests := []struct {
		name        string
		fileID      int64
		wantCount   int
		wantSkipped string
	}{
		{name: "in flight", fileID: parsing.ID, wantCount: 1},
		{name: "already parsed", fileID: parsed.ID, wantCount: 1},
		{name: "failed", fileID: failed.ID, wantSkipped: "parse status FAILED"},
		{name: "no chunks", fileID: noChunks.ID, wantSkipped: "no chunks"},
		{name: "missing file", fileID: 9999, wantSkipped: "file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			u, err := newService(s, client, 1).UpsertParsedFile(ctx, tt.fileID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, u.Count)
			assert.Equal(t, tt.wantSkipped, u.Skipped)
			assert.Len(t, client.reqs, tt.wantCount)
		})
	}
}

func TestService_UpsertFileStillSkipsInFlightFile(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	lib := &store.Library{Name: "kb"}
	require.NoError(t, s.CreateLibrary(ctx, lib))
	f := addFile(t, s, lib.ID, store.ParseParsing, "text")
	client := &fakeClient{}

	n, err := newService(s, client, 1).UpsertFile(ctx, f.ID)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, client.reqs)
}

func TestService_UpsertFilePayloadGuard(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	lib := &store.Library{Name: "kb"}
	require.NoError(t, s.CreateLibrary(ctx, lib))
	f := addFile(t, s, lib.ID, store.ParseSuccess, "aaaa", "bbbb", "cccc")

	svc := NewService(ServiceDependencies{
		Files: s, Libraries: s, Chunks: s, Client: &fakeClient{},
		Guard: Guard{MaxChunks: 2, MaxChars: 100, Strategy: StrategyFail},
	})
	_, err := svc.UpsertFile(ctx, f.ID)
	assert.True(t, kberrors.IsCode(err, kberrors.ErrCodePayloadTooLarge))
}

func TestService_ReindexLibrary(t *testing.T) {
	// Given: ten files, three not parsed, one rejected by the service
	s := newStore(t)
	ctx := context.Background()
	lib := &store.Library{Name: "kb", IndexMode: store.ModeHybrid}
	require.NoError(t, s.CreateLibrary(ctx, lib))

	var files []*store.File
	for i := range 10 {
		status := store.ParseSuccess
		switch i {
		case 2:
			status = store.ParsePending
		case 5:
			status = store.ParseFailed
		case 8:
			status = store.ParseParsing
		}
		files = append(files, addFile(t, s, lib.ID, status, "chunk text"))
	}
	client := &fakeClient{failFor: map[int64]bool{files[4].ID: true}}

	// When: rebuilding with parallel uploads
	results, err := newService(s, client, 3).ReindexLibrary(ctx, lib.ID)

	// Then: every file is reported in order
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, files[i].ID, r.FileID)
		switch i {
		case 2, 5, 8:
			assert.True(t, r.Skipped, "file %d", i)
			assert.False(t, r.OK)
		case 4:
			assert.False(t, r.OK)
			assert.Contains(t, r.Message, "service down")
		default:
			assert.True(t, r.OK, "file %d", i)
			assert.Equal(t, 1, r.Upserted)
		}
	}
	assert.Len(t, client.reqs, 7)
}

func TestService_ReindexLibraryEmpty(t *testing.T) {
	s := newStore(t)
	results, err := newService(s, &fakeClient{}, 1).ReindexLibrary(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, results)
}
