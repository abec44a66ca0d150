package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// DefaultDebounce is the quiet period before a dropped file is registered.
const DefaultDebounce = 500 * time.Millisecond

// Importer registers a file outside storage. *Registrar implements it.
type Importer interface {
	Import(ctx context.Context, kbID int64, src string) (*Registration, error)
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Dir      string
	Debounce time.Duration
	// Accept filters file names; nil accepts everything not hidden.
	Accept func(name string) bool
}

// Watcher imports files dropped into <Dir>/<kbId>/ and removes them from
// the inbox once registered.
type Watcher struct {
	dir       string
	accept    func(string) bool
	importer  Importer
	debouncer *Debouncer
}

// NewWatcher returns a Watcher over opts.Dir.
func NewWatcher(opts WatcherOptions, importer Importer) (*Watcher, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, kberrors.ConfigError("inbox directory is empty", nil)
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, kberrors.ConfigError("invalid inbox directory", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		dir:       dir,
		accept:    opts.Accept,
		importer:  importer,
		debouncer: NewDebouncer(opts.Debounce),
	}, nil
}

// Run watches until ctx is done. Files already waiting in the inbox are
// picked up on start.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()
	defer w.debouncer.Stop()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && isKbDir(e.Name()) {
			w.watchKbDir(fsw, filepath.Join(w.dir, e.Name()))
		}
	}

	slog.Info("inbox_watcher_started", slog.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			slog.Info("inbox_watcher_stopped")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("inbox_watch_error", slog.String("error", err.Error()))
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return nil
			}
			w.process(ctx, batch)
		}
	}
}

// watchKbDir adds a kb directory and queues files already in it.
func (w *Watcher) watchKbDir(fsw *fsnotify.Watcher, dir string) {
	if err := fsw.Add(dir); err != nil {
		slog.Warn("inbox_watch_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			w.debouncer.Add(Event{Path: filepath.Join(dir, e.Name()), Op: OpWrite})
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	parent := filepath.Dir(ev.Name)
	if parent == w.dir {
		if ev.Has(fsnotify.Create) && isKbDir(filepath.Base(ev.Name)) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				w.watchKbDir(fsw, ev.Name)
			}
		}
		return
	}
	if filepath.Dir(parent) != w.dir || !isKbDir(filepath.Base(parent)) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.debouncer.Add(Event{Path: ev.Name, Op: OpRemove})
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		w.debouncer.Add(Event{Path: ev.Name, Op: OpWrite})
	}
}

func (w *Watcher) process(ctx context.Context, batch []Event) {
	for _, ev := range batch {
		if ev.Op != OpWrite || !w.accepts(filepath.Base(ev.Path)) {
			continue
		}
		info, err := os.Stat(ev.Path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		kbID, _ := strconv.ParseInt(filepath.Base(filepath.Dir(ev.Path)), 10, 64)

		reg, err := w.importer.Import(ctx, kbID, ev.Path)
		if err != nil {
			attrs := append([]any{slog.String("path", ev.Path)}, kberrors.LogAttrs(err)...)
			slog.Warn("inbox_import_failed", attrs...)
			continue
		}
		if err := os.Remove(ev.Path); err != nil {
			slog.Warn("inbox_cleanup_failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
		slog.Info("inbox_file_imported",
			slog.String("path", ev.Path),
			slog.Int64("file_id", reg.File.ID),
			slog.Int64("job_id", reg.Job.ID))
	}
}

func (w *Watcher) accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return w.accept == nil || w.accept(name)
}

func isKbDir(name string) bool {
	id, err := strconv.ParseInt(name, 10, 64)
	return err == nil && id > 0
}
