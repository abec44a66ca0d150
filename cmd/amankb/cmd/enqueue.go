package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
)

func newEnqueueCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "enqueue <kbId> <path>",
		Short: "Register a file and queue a parse job for it",
		Long: `Register a document with a library and queue a PARSE_FILE job.

A path under storage.root is registered in place. Any other path is copied
into storage first.`,
		Example: `  amankb enqueue 1 ./handbook.pdf
  amankb enqueue 1 1/handbook.pdf`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kbID, err := parseID("library id", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				reg, err := a.registrar.Enqueue(cmd.Context(), kbID, args[1])
				if err != nil {
					return err
				}

				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(map[string]any{
						"fileId":      reg.File.ID,
						"jobId":       reg.Job.ID,
						"storagePath": reg.File.StoragePath,
					})
				}
				out.Successf("Queued %s", reg.File.FileName)
				out.KV(
					output.Field{Label: "File", Value: fmt.Sprint(reg.File.ID)},
					output.Field{Label: "Job", Value: fmt.Sprint(reg.Job.ID)},
					output.Field{Label: "Stored at", Value: reg.File.StoragePath},
				)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
