// Package worker runs PARSE_FILE jobs: it reads an uploaded file, extracts
// and cleans its text, splits it into chunks, persists them and hands the
// file to the index dispatcher.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/amankb/internal/chunk"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/extract"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/store"
)

// Checkpoints written to the job and its file as parsing advances.
const (
	ProgressRead    = 20
	ProgressExtract = 40
	ProgressChunk   = 60
	ProgressPersist = 85
	ProgressSync    = 95
	ProgressDone    = 100
)

// Stage messages.
const (
	StageRead    = "read file"
	StageExtract = "extract text"
	StageChunk   = "chunk"
	StagePersist = "persist chunks"
	StageSync    = "sync index"
)

const (
	// MaxMessageRunes bounds failure messages stored on jobs and files.
	MaxMessageRunes = 500

	// DefaultJobLease is how long a claimed job stays RUNNING without a
	// checkpoint before another worker may requeue it.
	DefaultJobLease = 15 * time.Minute

	msgComplete    = "parse complete"
	msgIndexFailed = "parse complete (index failed, retryable): "
	msgTooShort    = "extracted text too short: scanned PDF without OCR, empty or corrupt file"
)

// ProgressFunc observes each checkpoint of a job.
type ProgressFunc func(jobID int64, progress int, stage string)

// FileReader reads stored files by relative path.
type FileReader interface {
	Exists(rel string) (bool, error)
	Read(rel string) ([]byte, error)
}

// FileSyncer indexes a freshly parsed file. It reports failures in the
// result instead of returning them.
type FileSyncer interface {
	DispatchFile(ctx context.Context, fileID, kbID int64) index.SyncResult
}

// ProcessorDependencies holds the collaborators of a Processor.
type ProcessorDependencies struct {
	Jobs      store.JobStore
	Files     store.FileStore
	Chunks    store.ChunkStore
	Storage   FileReader
	Extractor extract.Extractor
	Index     FileSyncer

	// ChunkSize and ChunkOverlap default to the chunk package defaults.
	ChunkSize    int
	ChunkOverlap int

	// Owner identifies this worker on claimed jobs.
	Owner string
	// JobLease defaults to DefaultJobLease.
	JobLease time.Duration

	OnProgress ProgressFunc
	Now        func() time.Time
}

// Processor executes one parse job at a time.
type Processor struct {
	jobs      store.JobStore
	files     store.FileStore
	chunks    store.ChunkStore
	storage   FileReader
	extractor extract.Extractor
	index     FileSyncer

	chunkSize    int
	chunkOverlap int
	owner        string
	jobLease     time.Duration
	onProgress   ProgressFunc
	now          func() time.Time
}

// NewProcessor validates deps and returns a Processor.
func NewProcessor(deps ProcessorDependencies) (*Processor, error) {
	switch {
	case deps.Jobs == nil:
		return nil, fmt.Errorf("job store is required")
	case deps.Files == nil:
		return nil, fmt.Errorf("file store is required")
	case deps.Chunks == nil:
		return nil, fmt.Errorf("chunk store is required")
	case deps.Storage == nil:
		return nil, fmt.Errorf("storage is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("index dispatcher is required")
	}

	p := &Processor{
		jobs:         deps.Jobs,
		files:        deps.Files,
		chunks:       deps.Chunks,
		storage:      deps.Storage,
		extractor:    deps.Extractor,
		index:        deps.Index,
		chunkSize:    deps.ChunkSize,
		chunkOverlap: deps.ChunkOverlap,
		owner:        deps.Owner,
		jobLease:     deps.JobLease,
		onProgress:   deps.OnProgress,
		now:          deps.Now,
	}
	if p.chunkSize <= 0 {
		p.chunkSize = chunk.DefaultSize
	}
	if p.chunkOverlap < 0 {
		p.chunkOverlap = chunk.DefaultOverlap
	}
	if p.jobLease <= 0 {
		p.jobLease = DefaultJobLease
	}
	if p.owner == "" {
		p.owner = "worker"
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Execute runs job if it is still PENDING. Failures are recorded on the
// job and its file and also returned; a job that is no longer PENDING is
// left alone and nil is returned.
func (p *Processor) Execute(ctx context.Context, job *store.Job) error {
	current, err := p.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if current.Status != store.JobPending {
		slog.Debug("parse_job_not_pending",
			slog.Int64("job_id", current.ID),
			slog.String("status", string(current.Status)))
		return nil
	}

	if current.TargetID == nil {
		return p.fail(ctx, current.ID, 0, kberrors.Validation("job %d has no target file", current.ID))
	}
	fileID := *current.TargetID

	file, err := p.files.GetFile(ctx, fileID)
	if err != nil {
		return p.fail(ctx, current.ID, 0, err)
	}

	claimed, err := p.jobs.ClaimJob(ctx, current.ID, p.owner, p.leaseUntil())
	if err != nil {
		return err
	}
	if !claimed {
		slog.Debug("parse_job_claimed_elsewhere", slog.Int64("job_id", current.ID))
		return nil
	}
	if err := p.files.StartFileParse(ctx, fileID); err != nil {
		return p.fail(ctx, current.ID, fileID, err)
	}

	start := p.now()
	slog.Info("parse_job_started",
		slog.Int64("job_id", current.ID),
		slog.Int64("file_id", fileID),
		slog.Int64("kb_id", file.KbID),
		slog.String("file_name", file.FileName))

	message, err := p.run(ctx, current.ID, file)
	if err != nil {
		return p.fail(ctx, current.ID, fileID, err)
	}

	if err := p.jobs.CompleteJob(ctx, current.ID, fileID, message); err != nil {
		return err
	}
	p.report(current.ID, ProgressDone, message)

	slog.Info("parse_job_complete",
		slog.Int64("job_id", current.ID),
		slog.Int64("file_id", fileID),
		slog.String("message", message),
		slog.Duration("duration", p.now().Sub(start)))
	return nil
}

// run performs the stages and returns the completion message.
func (p *Processor) run(ctx context.Context, jobID int64, file *store.File) (string, error) {
	if err := p.checkpoint(ctx, jobID, file.ID, ProgressRead, StageRead); err != nil {
		return "", err
	}
	data, err := p.readFile(file)
	if err != nil {
		return "", err
	}

	if err := p.checkpoint(ctx, jobID, file.ID, ProgressExtract, StageExtract); err != nil {
		return "", err
	}
	raw, err := p.extractor.Extract(ctx, file.FileName, data)
	if err != nil {
		return "", err
	}
	text := chunk.Clean(raw)
	if chunk.TooShort(text) {
		return "", kberrors.Extraction(msgTooShort, nil)
	}

	if err := p.checkpoint(ctx, jobID, file.ID, ProgressChunk, StageChunk); err != nil {
		return "", err
	}
	pieces := chunk.Split(text, p.chunkSize, p.chunkOverlap)
	if len(pieces) == 0 {
		return "", kberrors.Chunking("chunking produced no chunks")
	}

	if err := p.checkpoint(ctx, jobID, file.ID, ProgressPersist, StagePersist); err != nil {
		return "", err
	}
	if _, err := p.chunks.ReplaceChunks(ctx, file.KbID, file.ID, pieces, 0); err != nil {
		return "", err
	}

	if err := p.checkpoint(ctx, jobID, file.ID, ProgressSync, StageSync); err != nil {
		return "", err
	}
	res := p.index.DispatchFile(ctx, file.ID, file.KbID)
	if !res.OK() {
		slog.Warn("parse_index_sync_failed",
			slog.Int64("job_id", jobID),
			slog.Int64("file_id", file.ID),
			slog.String("mode", string(res.Mode)),
			slog.String("warning", res.Warning))
		return msgIndexFailed + res.Warning, nil
	}
	return msgComplete, nil
}

func (p *Processor) readFile(file *store.File) ([]byte, error) {
	if !strings.EqualFold(strings.TrimSpace(file.StorageType), store.StorageLocal) {
		return nil, kberrors.New(kberrors.ErrCodeStorageType,
			fmt.Sprintf("unsupported storage type %q", file.StorageType), nil)
	}
	ok, err := p.storage.Exists(file.StoragePath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kberrors.New(kberrors.ErrCodeFileNotFound,
			fmt.Sprintf("file not found in storage: %s", file.StoragePath), nil)
	}
	return p.storage.Read(file.StoragePath)
}

func (p *Processor) checkpoint(ctx context.Context, jobID, fileID int64, progress int, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.jobs.Checkpoint(ctx, jobID, fileID, progress, stage, p.leaseUntil()); err != nil {
		return err
	}
	p.report(jobID, progress, stage)
	return nil
}

// fail records err on the job and, when fileID is set, its file. The
// write outlives ctx so a cancelled job is not left RUNNING.
func (p *Processor) fail(ctx context.Context, jobID, fileID int64, err error) error {
	msg := SafeMessage(err)
	if ferr := p.jobs.FailJob(context.WithoutCancel(ctx), jobID, fileID, msg); ferr != nil {
		slog.Error("parse_job_fail_write_failed",
			slog.Int64("job_id", jobID),
			slog.String("error", ferr.Error()))
	}
	attrs := append([]any{
		slog.Int64("job_id", jobID),
		slog.Int64("file_id", fileID),
	}, kberrors.LogAttrs(err)...)
	slog.Warn("parse_job_failed", attrs...)
	return err
}

func (p *Processor) report(jobID int64, progress int, stage string) {
	if p.onProgress != nil {
		p.onProgress(jobID, progress, stage)
	}
}

func (p *Processor) leaseUntil() time.Time {
	return p.now().Add(p.jobLease)
}

// SafeMessage is the failure text stored for err.
func SafeMessage(err error) string {
	return kberrors.SafeMessage(err, MaxMessageRunes)
}
