// Package index routes index synchronization to the text and vector
// backends according to each library's index mode.
//
// Two paths exist. The automatic path runs after a parse and never fails
// the caller: backend errors become a warning on the SyncResult. The
// manual path, used by operators to rebuild, returns backend errors.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/vectorindex"
)

// maxWarningRunes bounds each backend's part of a sync warning.
const maxWarningRunes = 500

// ItemResult is the vector outcome of one file in a library rebuild.
type ItemResult = vectorindex.ItemResult

// TextIndexer rebuilds text index documents.
type TextIndexer interface {
	ReindexFile(ctx context.Context, fileID int64) error
	ReindexLibrary(ctx context.Context, kbID int64) (int, error)
}

// VectorIndexer rebuilds vector service entries.
type VectorIndexer interface {
	UpsertFile(ctx context.Context, fileID int64) (int, error)
	UpsertParsedFile(ctx context.Context, fileID int64) (vectorindex.Upsert, error)
	ReindexLibrary(ctx context.Context, kbID int64) ([]vectorindex.ItemResult, error)
}

// SyncResult is the outcome of an automatic file sync.
type SyncResult struct {
	Mode      store.IndexMode `json:"mode"`
	TextRan   bool            `json:"textRan"`
	VectorRan bool            `json:"vectorRan"`
	// VectorSkipped is why the vector step sent nothing, when it ran but
	// found nothing to send.
	VectorSkipped string `json:"vectorSkipped,omitempty"`
	// Warning joins the failure message of every backend that failed.
	Warning string `json:"warning,omitempty"`
}

// OK reports whether every backend that ran succeeded.
func (r SyncResult) OK() bool {
	return r.Warning == ""
}

func (r *SyncResult) fail(prefix string, err error) {
	msg := prefix + kberrors.SafeMessage(err, maxWarningRunes)
	if r.Warning == "" {
		r.Warning = msg
		return
	}
	r.Warning += "; " + msg
}

// LibraryResult is the outcome of a manual library rebuild.
type LibraryResult struct {
	KbID     int64             `json:"kbId"`
	Mode     store.IndexMode   `json:"mode"`
	TextRan  bool              `json:"textRan"`
	TextDocs int               `json:"textDocs"`
	Vector   []ItemResult      `json:"vector,omitempty"`
	Status   store.IndexStatus `json:"status"`
}

// DispatcherDependencies holds the collaborators of a Dispatcher.
type DispatcherDependencies struct {
	Files     store.FileStore
	Libraries store.LibraryStore

	// Text is required.
	Text TextIndexer

	// Vector may be nil when no vector service is configured; libraries
	// that need it then fail their vector step.
	Vector VectorIndexer
}

// Dispatcher chooses backends by library index mode.
type Dispatcher struct {
	files     store.FileStore
	libraries store.LibraryStore
	text      TextIndexer
	vector    VectorIndexer
}

// NewDispatcher validates deps and returns a Dispatcher.
func NewDispatcher(deps DispatcherDependencies) (*Dispatcher, error) {
	if deps.Files == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if deps.Libraries == nil {
		return nil, fmt.Errorf("library store is required")
	}
	if deps.Text == nil {
		return nil, fmt.Errorf("text indexer is required")
	}
	return &Dispatcher{
		files:     deps.Files,
		libraries: deps.Libraries,
		text:      deps.Text,
		vector:    deps.Vector,
	}, nil
}

var errVectorDisabled = kberrors.ConfigError("vector index is not configured", nil).
	WithSuggestion("set vector_index.enabled and vector_index.base_url")

// DispatchFile syncs one freshly parsed file. A missing library is treated
// as TEXT_OS. Backends run independently; failures are collected into
// the result's warning and never returned.
func (d *Dispatcher) DispatchFile(ctx context.Context, fileID, kbID int64) SyncResult {
	mode := store.ModeTextOS
	lib, err := d.libraries.GetLibrary(ctx, kbID)
	switch {
	case err == nil:
		mode = lib.Mode()
	case !kberrors.IsNotFound(err):
		slog.Warn("index_dispatch_library_lookup_failed",
			slog.Int64("kb_id", kbID),
			slog.String("error", err.Error()))
	}

	res := SyncResult{Mode: mode}
	slog.Info("index_dispatch_begin",
		slog.Int64("kb_id", kbID),
		slog.Int64("file_id", fileID),
		slog.String("mode", string(mode)))

	if mode.UsesText() {
		res.TextRan = true
		if err := d.text.ReindexFile(ctx, fileID); err != nil {
			slog.Error("text_index_sync_failed", append([]any{slog.Int64("file_id", fileID)}, kberrors.LogAttrs(err)...)...)
			res.fail("text index failed: ", err)
		} else {
			slog.Info("text_index_sync_ok", slog.Int64("file_id", fileID))
		}
	}

	if mode.UsesVector() {
		res.VectorRan = true
		u, err := d.upsertParsed(ctx, fileID)
		switch {
		case err != nil:
			slog.Error("vector_index_sync_failed", append([]any{slog.Int64("file_id", fileID)}, kberrors.LogAttrs(err)...)...)
			res.fail("vector index failed: ", err)
		case u.Skipped != "":
			res.VectorSkipped = u.Skipped
			slog.Warn("vector_index_sync_skipped", slog.Int64("file_id", fileID), slog.String("reason", u.Skipped))
		default:
			slog.Info("vector_index_sync_ok", slog.Int64("file_id", fileID), slog.Int("upsert_count", u.Count))
		}
	}

	slog.Info("index_dispatch_end",
		slog.Int64("kb_id", kbID),
		slog.Int64("file_id", fileID),
		slog.String("mode", string(mode)),
		slog.Bool("ok", res.OK()),
		slog.String("warning", res.Warning))
	return res
}

func (d *Dispatcher) upsertParsed(ctx context.Context, fileID int64) (vectorindex.Upsert, error) {
	if d.vector == nil {
		return vectorindex.Upsert{}, errVectorDisabled
	}
	return d.vector.UpsertParsedFile(ctx, fileID)
}

func (d *Dispatcher) upsertVector(ctx context.Context, fileID int64) error {
	if d.vector == nil {
		return errVectorDisabled
	}
	_, err := d.vector.UpsertFile(ctx, fileID)
	return err
}

// ReindexFile rebuilds one file's index entries on operator request.
// Missing files and libraries are NotFound errors and backend errors are
// returned. HYBRID runs both backends and joins their errors.
func (d *Dispatcher) ReindexFile(ctx context.Context, fileID int64) error {
	file, err := d.files.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	lib, err := d.libraries.GetLibrary(ctx, file.KbID)
	if err != nil {
		return err
	}

	mode := lib.Mode()
	slog.Info("index_reindex_file",
		slog.Int64("kb_id", lib.ID),
		slog.Int64("file_id", fileID),
		slog.String("mode", string(mode)))

	var errs []error
	if mode.UsesText() {
		if err := d.text.ReindexFile(ctx, fileID); err != nil {
			errs = append(errs, fmt.Errorf("text index: %w", err))
		}
	}
	if mode.UsesVector() {
		if err := d.upsertVector(ctx, fileID); err != nil {
			errs = append(errs, fmt.Errorf("vector index: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ReindexLibrary rebuilds a library on operator request. The library is
// BUILDING while it runs, then AVAILABLE, or FAILED when a backend
// rebuild fails. Text rebuilds every active chunk regardless of parse
// status; vector rebuilds only files that parsed successfully and keeps
// per-file failures in the result.
func (d *Dispatcher) ReindexLibrary(ctx context.Context, kbID int64) (*LibraryResult, error) {
	lib, err := d.libraries.GetLibrary(ctx, kbID)
	if err != nil {
		return nil, err
	}

	mode := lib.Mode()
	res := &LibraryResult{KbID: kbID, Mode: mode}
	if err := d.libraries.SetLibraryIndexStatus(ctx, kbID, store.IndexBuilding); err != nil {
		return nil, err
	}
	slog.Info("index_reindex_library_begin", slog.Int64("kb_id", kbID), slog.String("mode", string(mode)))

	var errs []error
	if mode.UsesText() {
		res.TextRan = true
		n, err := d.text.ReindexLibrary(ctx, kbID)
		res.TextDocs = n
		if err != nil {
			errs = append(errs, fmt.Errorf("text index: %w", err))
		}
	}
	if mode.UsesVector() {
		if d.vector == nil {
			errs = append(errs, fmt.Errorf("vector index: %w", errVectorDisabled))
		} else {
			items, err := d.vector.ReindexLibrary(ctx, kbID)
			res.Vector = items
			if err != nil {
				errs = append(errs, fmt.Errorf("vector index: %w", err))
			}
		}
	}

	res.Status = store.IndexAvailable
	if len(errs) > 0 {
		res.Status = store.IndexFailed
	}
	// the rebuild outcome is recorded even when the caller has gone away
	if err := d.libraries.SetLibraryIndexStatus(context.WithoutCancel(ctx), kbID, res.Status); err != nil {
		errs = append(errs, err)
	}

	err = errors.Join(errs...)
	attrs := []any{
		slog.Int64("kb_id", kbID),
		slog.String("status", string(res.Status)),
		slog.Int("text_docs", res.TextDocs),
		slog.String("vector", summarize(res.Vector)),
	}
	if err != nil {
		slog.Error("index_reindex_library_failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		slog.Info("index_reindex_library_done", attrs...)
	}
	return res, err
}

func summarize(items []ItemResult) string {
	if len(items) == 0 {
		return ""
	}
	ok, skipped, failed := 0, 0, 0
	for _, it := range items {
		switch {
		case it.Skipped:
			skipped++
		case it.OK:
			ok++
		default:
			failed++
		}
	}
	return fmt.Sprintf("ok=%d skipped=%d failed=%d", ok, skipped, failed)
}
