package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/extract"
	"github.com/Aman-CERP/amankb/internal/inbox"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/lease"
	"github.com/Aman-CERP/amankb/internal/library"
	"github.com/Aman-CERP/amankb/internal/storage"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/textindex"
	"github.com/Aman-CERP/amankb/internal/vectorindex"
	"github.com/Aman-CERP/amankb/internal/worker"
)

// app is the wired pipeline shared by the commands.
type app struct {
	cfg        *config.Config
	store      *store.SQLiteStore
	storage    *storage.Local
	extractor  *extract.Registry
	textClient textindex.Client
	text       *textindex.Service
	vector     *vectorindex.Service
	dispatcher *index.Dispatcher
	libraries  *library.Service
	registrar  *inbox.Registrar
}

// newApp opens the store and builds every service from cfg.
func newApp(cfg *config.Config) (*app, error) {
	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: s}

	if a.storage, err = storage.NewLocal(cfg.Storage.Root); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.extractor = extract.New(extract.Options{
		MaxChars: cfg.Extract.MaxChars,
		MaxBytes: int64(cfg.Extract.MaxFileSizeMB) * 1024 * 1024,
	})

	if a.textClient, err = textindex.NewClient(cfg.TextIndex); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.text = textindex.NewService(a.textClient, s, cfg.TextIndex.Index, cfg.TextIndex.BatchSize)

	deps := index.DispatcherDependencies{Files: s, Libraries: s, Text: a.text}
	if cfg.VectorIndex.Enabled && strings.TrimSpace(cfg.VectorIndex.BaseURL) != "" {
		client, err := vectorindex.NewHTTPClient(vectorindex.HTTPConfig{
			BaseURL:     cfg.VectorIndex.BaseURL,
			ReindexPath: cfg.VectorIndex.ReindexPath,
			Timeout:     cfg.VectorIndex.Timeout,
			MaxRetries:  cfg.VectorIndex.MaxRetries,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.vector = vectorindex.NewService(vectorindex.ServiceDependencies{
			Files: s, Libraries: s, Chunks: s, Client: client,
			Guard: vectorindex.Guard{
				MaxChunks: cfg.VectorIndex.MaxChunks,
				MaxChars:  cfg.VectorIndex.MaxChars,
				Strategy:  vectorindex.ParseStrategy(cfg.VectorIndex.Strategy),
			},
			Concurrency: cfg.VectorIndex.Concurrency,
		})
		deps.Vector = a.vector
	} else {
		slog.Info("vector_index_disabled")
	}

	if a.dispatcher, err = index.NewDispatcher(deps); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.libraries = library.NewService(s)
	a.registrar = inbox.NewRegistrar(s, a.storage)
	return a, nil
}

// newProcessor builds the parse job processor.
func (a *app) newProcessor(owner string, onProgress worker.ProgressFunc) (*worker.Processor, error) {
	return worker.NewProcessor(worker.ProcessorDependencies{
		Jobs: a.store, Files: a.store, Chunks: a.store,
		Storage:      a.storage,
		Extractor:    a.extractor,
		Index:        a.dispatcher,
		ChunkSize:    a.cfg.Chunk.Size,
		ChunkOverlap: a.cfg.Chunk.Overlap,
		Owner:        owner,
		JobLease:     a.cfg.Worker.JobLease,
		OnProgress:   onProgress,
	})
}

// newLease builds the scheduler lease from worker.lease_backend.
func (a *app) newLease(holder string) (lease.Lease, error) {
	return lease.New(lease.Options{
		Backend: a.cfg.Worker.LeaseBackend,
		Dir:     filepath.Dir(a.cfg.Database.Path),
		TTL:     a.cfg.Worker.LeaseTTL,
		Holder:  holder,
	}, a.store)
}

// schedulerConfig wires a scheduler for one process.
func (a *app) schedulerConfig(onProgress worker.ProgressFunc) (worker.SchedulerConfig, error) {
	holder := lease.HolderID()
	l, err := a.newLease(holder)
	if err != nil {
		return worker.SchedulerConfig{}, err
	}
	proc, err := a.newProcessor(holder, onProgress)
	if err != nil {
		return worker.SchedulerConfig{}, err
	}
	return worker.SchedulerConfig{
		Jobs:         a.store,
		Lease:        l,
		Executor:     proc,
		PollInterval: a.cfg.Worker.PollInterval,
	}, nil
}

// Close releases the text index and the store.
func (a *app) Close() error {
	var errs []error
	if a.textClient != nil {
		if err := a.textClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close text index: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// withApp runs fn with a wired app that is closed afterwards.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("app_close_failed", slog.String("error", err.Error()))
		}
	}()
	return fn(a)
}
