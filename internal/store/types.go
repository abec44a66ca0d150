// Package store persists knowledge-base libraries, files, parse jobs and
// chunks in SQLite. It is the single source of truth the text and vector
// indexes are rebuilt from.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/Aman-CERP/amankb/internal/chunk"
)

// JobType identifies the work a job performs.
type JobType string

// JobTypeParseFile extracts, chunks and indexes one file.
const JobTypeParseFile JobType = "PARSE_FILE"

// JobStatus is the persisted state of a job.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed
}

// ParseStatus is the persisted parse state of a file.
type ParseStatus string

const (
	ParsePending ParseStatus = "PENDING"
	ParseParsing ParseStatus = "PARSING"
	ParseSuccess ParseStatus = "SUCCESS"
	ParseFailed  ParseStatus = "FAILED"
)

// IndexMode selects which backends a library is synchronized with.
type IndexMode string

const (
	ModeTextOS IndexMode = "TEXT_OS"
	ModeVector IndexMode = "VECTOR"
	ModeHybrid IndexMode = "HYBRID"

	// legacy spellings still found in stored rows
	modeBM25      = "BM25"
	modeEmbedding = "EMBEDDING"
)

// UsesText reports whether the mode includes the text search backend.
func (m IndexMode) UsesText() bool { return m == ModeTextOS || m == ModeHybrid }

// UsesVector reports whether the mode includes the vector backend.
func (m IndexMode) UsesVector() bool { return m == ModeVector || m == ModeHybrid }

// NormalizeIndexMode maps a stored or requested mode to its canonical
// value. Legacy aliases are translated; blank or unknown input falls back
// to TEXT_OS.
func NormalizeIndexMode(raw string) IndexMode {
	mode, ok := ParseIndexMode(raw)
	if !ok {
		return ModeTextOS
	}
	return mode
}

// ParseIndexMode is NormalizeIndexMode without the fallback: ok is false
// for blank or unrecognized input.
func ParseIndexMode(raw string) (IndexMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(ModeTextOS), modeBM25:
		return ModeTextOS, true
	case string(ModeVector), modeEmbedding:
		return ModeVector, true
	case string(ModeHybrid):
		return ModeHybrid, true
	default:
		return "", false
	}
}

// IndexStatus is the build state of a library's indexes.
type IndexStatus string

const (
	IndexAvailable IndexStatus = "AVAILABLE"
	IndexBuilding  IndexStatus = "BUILDING"
	IndexFailed    IndexStatus = "FAILED"
	// IndexDisabled marks a library whose configuration changed and whose
	// indexes need a rebuild.
	IndexDisabled IndexStatus = "DISABLED"
)

// StorageLocal is the only storage type the worker can read.
const StorageLocal = "LOCAL"

// Job is one unit of background work.
type Job struct {
	ID       int64
	KbID     int64
	JobType  JobType
	TargetID *int64
	Status   JobStatus
	Progress int
	Message  string

	StartTime *time.Time
	EndTime   *time.Time

	// Owner and LeaseExpiresAt are set while RUNNING. A job whose lease
	// lapses is returned to PENDING by RequeueExpiredJobs.
	Owner          string
	LeaseExpiresAt *time.Time

	CreateTime time.Time
	UpdateTime time.Time
}

// File is an uploaded document.
type File struct {
	ID            int64
	KbID          int64
	FileName      string
	StorageType   string
	StoragePath   string
	ParseStatus   ParseStatus
	ParseProgress int
	ParseMessage  string
	ParsedTime    *time.Time
	CreateTime    time.Time
	UpdateTime    time.Time
}

// Chunk is a persisted piece of a file's cleaned text.
type Chunk struct {
	ID             int64
	KbID           int64
	FileID         int64
	ChunkIndex     int
	Content        string
	ContentLen     int
	ContentHash    string
	ByteStart      int
	ByteEnd        int
	ContentByteLen int
	Active         bool
	CreateTime     time.Time
	UpdateTime     time.Time
}

// Library is a knowledge base and its index configuration.
// TextConfig and VectorConfig are opaque and passed through untouched.
type Library struct {
	ID           int64
	Name         string
	IndexMode    IndexMode
	IndexVersion int
	IndexStatus  IndexStatus
	TextConfig   string
	VectorConfig string
	CreateTime   time.Time
	UpdateTime   time.Time
}

// Mode returns the library's normalized index mode.
func (l *Library) Mode() IndexMode {
	if l == nil {
		return ModeTextOS
	}
	return NormalizeIndexMode(string(l.IndexMode))
}

// JobStore is the job persistence used by the parse worker.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListPendingJobs(ctx context.Context, jobType JobType, limit int) ([]*Job, error)
	ClaimJob(ctx context.Context, id int64, owner string, leaseUntil time.Time) (bool, error)
	Checkpoint(ctx context.Context, jobID, fileID int64, progress int, message string, leaseUntil time.Time) error
	CompleteJob(ctx context.Context, jobID, fileID int64, message string) error
	FailJob(ctx context.Context, jobID, fileID int64, message string) error
	RequeueExpiredJobs(ctx context.Context, now time.Time) (int, error)
}

// FileStore is the file persistence used by the worker and indexers.
type FileStore interface {
	CreateFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, id int64) (*File, error)
	ListFilesByKb(ctx context.Context, kbID int64) ([]*File, error)
	StartFileParse(ctx context.Context, fileID int64) error
}

// ChunkStore is the chunk persistence used by the worker and indexers.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, kbID, fileID int64, pieces []chunk.Piece, actor int64) (int, error)
	ListActiveChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error)
	ListActiveChunksByKb(ctx context.Context, kbID int64) ([]*Chunk, error)
}

// LibraryStore is the library persistence used by the dispatcher and the
// index configuration service.
type LibraryStore interface {
	CreateLibrary(ctx context.Context, lib *Library) error
	GetLibrary(ctx context.Context, id int64) (*Library, error)
	UpdateLibraryIndexConfig(ctx context.Context, lib *Library) error
	SetLibraryIndexStatus(ctx context.Context, id int64, status IndexStatus) error
}

// LeaseStore backs named, time-bounded mutual exclusion.
type LeaseStore interface {
	TryAcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error
}

// Store is everything the SQLite implementation provides.
type Store interface {
	JobStore
	FileStore
	ChunkStore
	LibraryStore
	LeaseStore
	Close() error
}
