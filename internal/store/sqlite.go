package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// SQLiteStore implements Store on a single SQLite database.
// One open connection serializes writers, and WAL keeps readers off
// the writer's lock.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS kb_library (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL DEFAULT '',
	index_mode    TEXT,
	index_version INTEGER NOT NULL DEFAULT 1,
	index_status  TEXT NOT NULL DEFAULT 'AVAILABLE',
	text_config   TEXT,
	vector_config TEXT,
	create_time   INTEGER NOT NULL,
	update_time   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kb_file (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	kb_id          INTEGER NOT NULL,
	file_name      TEXT NOT NULL,
	storage_type   TEXT NOT NULL DEFAULT 'LOCAL',
	storage_path   TEXT NOT NULL,
	parse_status   TEXT NOT NULL DEFAULT 'PENDING',
	parse_progress INTEGER NOT NULL DEFAULT 0,
	parse_message  TEXT,
	parsed_time    INTEGER,
	deleted_flag   INTEGER NOT NULL DEFAULT 1,
	create_time    INTEGER NOT NULL,
	update_time    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kb_file_kb ON kb_file(kb_id, deleted_flag);

CREATE TABLE IF NOT EXISTS kb_job (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	kb_id            INTEGER NOT NULL,
	job_type         TEXT NOT NULL,
	target_id        INTEGER,
	status           TEXT NOT NULL DEFAULT 'PENDING',
	progress         INTEGER NOT NULL DEFAULT 0,
	message          TEXT,
	start_time       INTEGER,
	end_time         INTEGER,
	owner            TEXT,
	lease_expires_at INTEGER,
	create_time      INTEGER NOT NULL,
	update_time      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kb_job_status ON kb_job(job_type, status, id);

CREATE TABLE IF NOT EXISTS kb_chunk (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	kb_id            INTEGER NOT NULL,
	file_id          INTEGER NOT NULL,
	chunk_index      INTEGER NOT NULL,
	content          TEXT NOT NULL,
	content_len      INTEGER NOT NULL,
	content_hash     TEXT NOT NULL,
	byte_start       INTEGER NOT NULL DEFAULT 0,
	byte_end         INTEGER NOT NULL DEFAULT 0,
	content_byte_len INTEGER NOT NULL DEFAULT 0,
	deleted_flag     INTEGER NOT NULL DEFAULT 1,
	create_user_id   INTEGER,
	update_user_id   INTEGER,
	create_time      INTEGER NOT NULL,
	update_time      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kb_chunk_file ON kb_chunk(file_id, deleted_flag, chunk_index);
CREATE INDEX IF NOT EXISTS idx_kb_chunk_kb ON kb_chunk(kb_id, deleted_flag);

CREATE TABLE IF NOT EXISTS kb_lease (
	name       TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// deleted_flag values. 1 marks a live row.
const (
	flagActive  = 1
	flagDeleted = 0
)

// Open opens (creating if needed) the metadata database at path.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, kberrors.ConfigError("database path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters; set pragmas directly
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return kberrors.Database("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kberrors.Database(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		if _, ok := kberrors.As(err); ok {
			return err
		}
		return kberrors.Database(op, err)
	}
	if err := tx.Commit(); err != nil {
		return kberrors.Database(op, err)
	}
	return nil
}

// Timestamps are stored as unix milliseconds.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
