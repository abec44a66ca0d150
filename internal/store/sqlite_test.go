package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedFile creates a library, a file and a PENDING parse job for it.
func seedFile(t *testing.T, s *SQLiteStore, mode IndexMode) (*Library, *File, *Job) {
	t.Helper()
	ctx := context.Background()

	lib := &Library{Name: "docs", IndexMode: mode}
	require.NoError(t, s.CreateLibrary(ctx, lib))

	f := &File{KbID: lib.ID, FileName: "a.txt", StoragePath: "kb/a.txt"}
	require.NoError(t, s.CreateFile(ctx, f))

	job := &Job{KbID: lib.ID, TargetID: &f.ID}
	require.NoError(t, s.CreateJob(ctx, job))
	return lib, f, job
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestLibrary_CreateGetUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lib := &Library{Name: "handbook", IndexMode: "bm25", TextConfig: "{}"}
	require.NoError(t, s.CreateLibrary(ctx, lib))
	assert.Equal(t, 1, lib.IndexVersion)

	got, err := s.GetLibrary(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, IndexMode("bm25"), got.IndexMode, "raw mode is stored untouched")
	assert.Equal(t, ModeTextOS, got.Mode())
	assert.Equal(t, IndexAvailable, got.IndexStatus)

	got.IndexMode = ModeHybrid
	got.IndexVersion = 2
	got.IndexStatus = IndexDisabled
	got.VectorConfig = `{"dim":1024}`
	require.NoError(t, s.UpdateLibraryIndexConfig(ctx, got))

	again, err := s.GetLibrary(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, again.IndexMode)
	assert.Equal(t, 2, again.IndexVersion)
	assert.Equal(t, IndexDisabled, again.IndexStatus)
	assert.Equal(t, `{"dim":1024}`, again.VectorConfig)

	require.NoError(t, s.SetLibraryIndexStatus(ctx, lib.ID, IndexBuilding))
	again, err = s.GetLibrary(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, IndexBuilding, again.IndexStatus)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetLibrary(ctx, 99)
	assert.True(t, kberrors.IsNotFound(err))
	_, err = s.GetFile(ctx, 99)
	assert.True(t, kberrors.IsNotFound(err))
	_, err = s.GetJob(ctx, 99)
	assert.True(t, kberrors.IsNotFound(err))
	assert.True(t, kberrors.IsNotFound(s.SetLibraryIndexStatus(ctx, 99, IndexBuilding)))
}

func TestCreate_RequiresKbID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.True(t, kberrors.IsValidation(s.CreateFile(ctx, &File{FileName: "x"})))
	assert.True(t, kberrors.IsValidation(s.CreateJob(ctx, &Job{})))
}

func TestListFilesByKb(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib, first, _ := seedFile(t, s, ModeTextOS)

	second := &File{KbID: lib.ID, FileName: "b.pdf", StoragePath: "kb/b.pdf"}
	require.NoError(t, s.CreateFile(ctx, second))
	other := &File{KbID: lib.ID + 100, FileName: "c.txt", StoragePath: "c.txt"}
	require.NoError(t, s.CreateFile(ctx, other))

	files, err := s.ListFilesByKb(ctx, lib.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, first.ID, files[0].ID)
	assert.Equal(t, second.ID, files[1].ID)
	assert.Equal(t, StorageLocal, files[0].StorageType)
	assert.Equal(t, ParsePending, files[0].ParseStatus)
}

func TestJob_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, f, job := seedFile(t, s, ModeTextOS)

	// Given: one pending job
	pending, err := s.ListPendingJobs(ctx, JobTypeParseFile, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, job.ID, pending[0].ID)

	// When: it is claimed twice
	lease := time.Now().Add(time.Minute)
	ok, err := s.ClaimJob(ctx, job.ID, "worker-a", lease)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ClaimJob(ctx, job.ID, "worker-b", lease)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, got.Status)
	assert.Equal(t, "worker-a", got.Owner)
	assert.NotNil(t, got.StartTime)
	assert.Nil(t, got.EndTime)

	// Then: checkpoints reach both records
	require.NoError(t, s.StartFileParse(ctx, f.ID))
	require.NoError(t, s.Checkpoint(ctx, job.ID, f.ID, 40, "extract text", lease))
	got, _ = s.GetJob(ctx, job.ID)
	gotFile, _ := s.GetFile(ctx, f.ID)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "extract text", got.Message)
	assert.Equal(t, 40, gotFile.ParseProgress)
	assert.Equal(t, ParseParsing, gotFile.ParseStatus)

	require.NoError(t, s.CompleteJob(ctx, job.ID, f.ID, "parse complete"))
	got, _ = s.GetJob(ctx, job.ID)
	gotFile, _ = s.GetFile(ctx, f.ID)
	assert.Equal(t, JobSuccess, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.EndTime)
	assert.Empty(t, got.Owner)
	assert.Equal(t, ParseSuccess, gotFile.ParseStatus)
	assert.NotNil(t, gotFile.ParsedTime)

	pending, err = s.ListPendingJobs(ctx, JobTypeParseFile, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFailJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, f, job := seedFile(t, s, ModeTextOS)

	_, err := s.ClaimJob(ctx, job.ID, "w", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Checkpoint(ctx, job.ID, f.ID, 60, "chunk", time.Now().Add(time.Minute)))

	require.NoError(t, s.FailJob(ctx, job.ID, f.ID, "boom"))

	got, _ := s.GetJob(ctx, job.ID)
	gotFile, _ := s.GetFile(ctx, f.ID)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, "boom", got.Message)
	assert.NotNil(t, got.EndTime)
	assert.Equal(t, ParseFailed, gotFile.ParseStatus)
	assert.Equal(t, 0, gotFile.ParseProgress)
	assert.Nil(t, gotFile.ParsedTime)
}

func TestFailJob_WithoutFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &Job{KbID: 1}
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.FailJob(ctx, job.ID, 0, "targetId is missing"))

	got, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, JobFailed, got.Status)
	assert.Nil(t, got.TargetID)
}

func TestRequeueExpiredJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, f, job := seedFile(t, s, ModeTextOS)

	// Given: a RUNNING job whose lease ended a minute ago
	_, err := s.ClaimJob(ctx, job.ID, "crashed-worker", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.StartFileParse(ctx, f.ID))

	// And: a RUNNING job with a live lease
	_, f2, live := seedFile(t, s, ModeTextOS)
	_, err = s.ClaimJob(ctx, live.ID, "healthy-worker", time.Now().Add(time.Hour))
	require.NoError(t, err)

	// When: requeueing
	n, err := s.RequeueExpiredJobs(ctx, time.Now())
	require.NoError(t, err)

	// Then: only the expired one is back to PENDING
	assert.Equal(t, 1, n)
	got, _ := s.GetJob(ctx, job.ID)
	assert.Equal(t, JobPending, got.Status)
	assert.Equal(t, RequeueMessage, got.Message)
	assert.Empty(t, got.Owner)
	gotFile, _ := s.GetFile(ctx, f.ID)
	assert.Equal(t, ParsePending, gotFile.ParseStatus)

	stillRunning, _ := s.GetJob(ctx, live.ID)
	assert.Equal(t, JobRunning, stillRunning.Status)
	untouched, _ := s.GetFile(ctx, f2.ID)
	assert.Equal(t, ParsePending, untouched.ParseStatus)
}

func TestLease_TryAcquire(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()
	s.now = func() time.Time { return base }

	ok, err := s.TryAcquireLease(ctx, "parse", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// held by someone else
	ok, err = s.TryAcquireLease(ctx, "parse", "b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// re-entrant for the holder
	ok, err = s.TryAcquireLease(ctx, "parse", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// expired leases can be taken over
	s.now = func() time.Time { return base.Add(time.Minute) }
	ok, err = s.TryAcquireLease(ctx, "parse", "b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// release by a non-holder is a no-op
	require.NoError(t, s.ReleaseLease(ctx, "parse", "a"))
	ok, err = s.TryAcquireLease(ctx, "parse", "a", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLease(ctx, "parse", "b"))
	ok, err = s.TryAcquireLease(ctx, "parse", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
