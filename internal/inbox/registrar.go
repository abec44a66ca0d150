// Package inbox registers uploaded files for parsing. Files can be
// enqueued directly or dropped into a watched folder laid out as
// <dir>/<kbId>/<file>.
package inbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/storage"
	"github.com/Aman-CERP/amankb/internal/store"
)

// Registrar creates the file row and PARSE_FILE job for an upload.
type Registrar struct {
	files     store.FileStore
	jobs      store.JobStore
	libraries store.LibraryStore
	storage   *storage.Local
	now       func() time.Time
}

// NewRegistrar returns a Registrar writing into local storage.
func NewRegistrar(s store.Store, local *storage.Local) *Registrar {
	return &Registrar{files: s, jobs: s, libraries: s, storage: local, now: time.Now}
}

// Registration is the file and job created for one upload.
type Registration struct {
	File *store.File `json:"file"`
	Job  *store.Job  `json:"job"`
}

// Register enqueues a file already present under the storage root.
func (r *Registrar) Register(ctx context.Context, kbID int64, relPath string) (*Registration, error) {
	if kbID <= 0 {
		return nil, kberrors.Validation("kbId must be positive")
	}
	if _, err := r.libraries.GetLibrary(ctx, kbID); err != nil {
		return nil, err
	}
	ok, err := r.storage.Exists(relPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kberrors.New(kberrors.ErrCodeFileNotFound,
			fmt.Sprintf("file not found in storage: %s", relPath), nil)
	}

	rel := filepath.ToSlash(relPath)
	f := &store.File{
		KbID:        kbID,
		FileName:    path.Base(rel),
		StorageType: store.StorageLocal,
		StoragePath: rel,
	}
	if err := r.files.CreateFile(ctx, f); err != nil {
		return nil, err
	}
	job := &store.Job{KbID: kbID, JobType: store.JobTypeParseFile, TargetID: &f.ID}
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	slog.Info("file_registered",
		slog.Int64("kb_id", kbID),
		slog.Int64("file_id", f.ID),
		slog.Int64("job_id", job.ID),
		slog.String("path", rel))
	return &Registration{File: f, Job: job}, nil
}

// Import copies src into storage as <kbId>/<unixMillis>-<name> and
// registers the copy.
func (r *Registrar) Import(ctx context.Context, kbID int64, src string) (*Registration, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeFileNotFound, fmt.Sprintf("cannot stat %s", src), err)
	}
	if !info.Mode().IsRegular() {
		return nil, kberrors.Validation("%s is not a regular file", src)
	}
	if _, err := r.libraries.GetLibrary(ctx, kbID); err != nil {
		return nil, err
	}

	rel := path.Join(strconv.FormatInt(kbID, 10),
		fmt.Sprintf("%d-%s", r.now().UnixMilli(), filepath.Base(src)))
	dst, err := r.storage.Resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := copyFile(src, dst); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeFileRead, fmt.Sprintf("failed to copy %s into storage", src), err)
	}
	return r.Register(ctx, kbID, rel)
}

// Enqueue registers p in place when it lies under the storage root and
// imports it otherwise.
func (r *Registrar) Enqueue(ctx context.Context, kbID int64, p string) (*Registration, error) {
	if abs, err := filepath.Abs(p); err == nil {
		if rel, err := filepath.Rel(r.storage.Root(), abs); err == nil && filepath.IsLocal(rel) {
			return r.Register(ctx, kbID, rel)
		}
	}
	return r.Import(ctx, kbID, p)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
