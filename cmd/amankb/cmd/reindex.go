package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
)

func newReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild search indexes from stored chunks",
		Long: `Rebuild the text index and the vector service from the chunks already
in the store. Files are not re-parsed.`,
	}
	cmd.AddCommand(newReindexFileCmd(), newReindexKbCmd())
	return cmd
}

func newReindexFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <fileId>",
		Short: "Reindex one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID("file id", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				if err := a.dispatcher.ReindexFile(cmd.Context(), fileID); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Reindexed file %d", fileID)
				return nil
			})
		},
	}
}

func newReindexKbCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "kb <kbId>",
		Aliases: []string{"library"},
		Short:   "Reindex every file of a library",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kbID, err := parseID("library id", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				res, err := a.dispatcher.ReindexLibrary(cmd.Context(), kbID)
				out := output.New(cmd.OutOrStdout())
				if jsonOutput && res != nil {
					if jerr := out.JSON(res); jerr != nil {
						return jerr
					}
				} else if res != nil {
					printLibraryResult(out, res)
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
