// Package cmd provides the CLI commands for amankb.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/config"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/logging"
	"github.com/Aman-CERP/amankb/pkg/version"
)

type ctxKey struct{}

// runtimeState is what PersistentPreRunE prepares for subcommands.
type runtimeState struct {
	cfg            *config.Config
	loggingCleanup func()
}

// NewRootCmd creates the root command for the amankb CLI.
func NewRootCmd() *cobra.Command {
	var (
		configDir string
		debugMode bool
	)
	state := &runtimeState{}

	cmd := &cobra.Command{
		Use:   "amankb",
		Short: "Knowledge-base parse and index pipeline",
		Long: `amankb parses uploaded documents into chunks and keeps a text search
index and a vector service in sync with them.

Run 'amankb serve' to start the parse worker and the admin API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipSetup(cmd) {
				return nil
			}
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			if debugMode {
				cfg.Logging.Level = "debug"
			}
			logger, cleanup, err := logging.Setup(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			slog.SetDefault(logger)
			state.cfg = cfg
			state.loggingCleanup = cleanup
			cmd.SetContext(context.WithValue(cmd.Context(), ctxKey{}, state))
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if state.loggingCleanup != nil {
				state.loggingCleanup()
				state.loggingCleanup = nil
			}
			return nil
		},
	}

	cmd.SetVersionTemplate("amankb version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configDir, "dir", ".", "Directory holding .amankb.yaml and .env")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newLibraryCmd())
	cmd.AddCommand(newJobCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// skipSetup reports whether cmd runs without loading configuration.
func skipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["setup"] == "none" {
			return true
		}
	}
	return false
}

// configFrom returns the configuration loaded for this invocation.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	if state, ok := cmd.Context().Value(ctxKey{}).(*runtimeState); ok && state.cfg != nil {
		return state.cfg, nil
	}
	return nil, fmt.Errorf("configuration not loaded")
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, kberrors.FormatForCLI(err))
	}
	return err
}
