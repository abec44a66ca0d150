package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run parse jobs",
	}
	cmd.AddCommand(newWorkerRunOnceCmd())
	return cmd
}

func newWorkerRunOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run the oldest pending parse job, if any",
		Long: `Take the scheduler lease, requeue expired jobs and run at most one
pending PARSE_FILE job, printing each checkpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app) error {
				out := output.New(cmd.OutOrStdout())
				cfg, err := a.schedulerConfig(func(_ int64, progress int, stage string) {
					out.Progress(progress, stage)
				})
				if err != nil {
					return err
				}

				ran, err := worker.RunOnce(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if !ran {
					out.Status("💤", "No pending jobs (or another worker holds the lease)")
					return nil
				}
				out.Success("Job finished")
				return nil
			})
		},
	}
}
