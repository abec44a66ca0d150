package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/store"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect parse jobs",
	}
	cmd.AddCommand(newJobShowCmd())
	return cmd
}

func newJobShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <jobId>",
		Short: "Show a job and its target file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseID("job id", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				job, err := a.store.GetJob(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				var file *store.File
				if job.TargetID != nil {
					// a missing file is reported by the job itself
					file, _ = a.store.GetFile(cmd.Context(), *job.TargetID)
				}

				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(map[string]any{"job": job, "file": file})
				}
				printJob(out, job, file)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printJob(out *output.Writer, job *store.Job, file *store.File) {
	out.Header(fmt.Sprintf("Job %d (%s)", job.ID, job.JobType))
	fields := []output.Field{
		{Label: "Library", Value: fmt.Sprint(job.KbID)},
		{Label: "Status", Value: string(job.Status)},
		{Label: "Started", Value: formatTime(job.StartTime)},
		{Label: "Ended", Value: formatTime(job.EndTime)},
	}
	if job.Owner != "" {
		fields = append(fields, output.Field{Label: "Owner", Value: job.Owner})
	}
	out.KV(fields...)
	out.Progress(job.Progress, job.Message)

	if file == nil {
		return
	}
	out.Newline()
	out.Header(fmt.Sprintf("File %d: %s", file.ID, file.FileName))
	out.KV(
		output.Field{Label: "Path", Value: file.StoragePath},
		output.Field{Label: "Parse", Value: string(file.ParseStatus)},
		output.Field{Label: "Message", Value: file.ParseMessage},
		output.Field{Label: "Parsed", Value: formatTime(file.ParsedTime)},
	)
}
