package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amankb/internal/api"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/inbox"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/preflight"
	"github.com/Aman-CERP/amankb/internal/worker"
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		noAPI   bool
		noInbox bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the parse worker and the admin API",
		Long: `Run the parse scheduler, the admin HTTP API and, when inbox.enabled is
set, the drop-folder watcher until interrupted.`,
		Example: `  amankb serve
  amankb serve --addr 0.0.0.0:8088
  amankb serve --no-api`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				if addr != "" {
					a.cfg.Server.Addr = addr
				}
				return runServe(cmd.Context(), cmd, a, !noAPI, a.cfg.Inbox.Enabled && !noInbox)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Do not start the admin API")
	cmd.Flags().BoolVar(&noInbox, "no-inbox", false, "Do not watch the inbox directory")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app, withAPI, withInbox bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if results := a.preflight().RunAll(ctx); preflight.HasCriticalFailures(results) {
		printChecks(output.New(cmd.ErrOrStderr()), results)
		return kberrors.ConfigError("preflight checks failed", nil).
			WithSuggestion("Run 'amankb doctor' for details")
	}

	schedCfg, err := a.schedulerConfig(nil)
	if err != nil {
		return err
	}
	sched := worker.NewScheduler(schedCfg)

	var w *inbox.Watcher
	if withInbox {
		w, err = inbox.NewWatcher(inbox.WatcherOptions{
			Dir:      a.cfg.Inbox.Dir,
			Debounce: a.cfg.Inbox.Debounce,
			Accept:   a.extractor.Supports,
		}, a.registrar)
		if err != nil {
			return err
		}
	}

	out := output.New(cmd.OutOrStdout())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(ctx)
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	if withAPI {
		server := api.New(api.Dependencies{
			Jobs: a.store, Files: a.store,
			Reindexer: a.dispatcher,
			Searcher:  a.text,
			Libraries: a.libraries,
			DB:        a.store,
			Worker:    func() worker.StatusSnapshot { return sched.Status().Snapshot() },
		})
		g.Go(func() error { return server.Run(ctx, a.cfg.Server.Addr) })
		out.Statusf("🌐", "Admin API on http://%s", a.cfg.Server.Addr)
	}

	if w != nil {
		g.Go(func() error { return w.Run(ctx) })
		out.Statusf("📥", "Watching %s", a.cfg.Inbox.Dir)
	}

	out.Statusf("⚙️ ", "Parse worker polling every %s (%s lease)", a.cfg.Worker.PollInterval, a.cfg.Worker.LeaseBackend)
	slog.Info("serve_started",
		slog.Bool("api", withAPI),
		slog.Bool("inbox", withInbox))

	err = g.Wait()
	slog.Info("serve_stopped")
	return err
}
