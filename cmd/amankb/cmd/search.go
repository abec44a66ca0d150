package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/textindex"
)

func newSearchCmd() *cobra.Command {
	var (
		kbID       int64
		fileID     int64
		page       int
		size       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Keyword search over indexed chunks",
		Example: `  amankb search "refund policy" --kb 1
  amankb search invoice --kb 1 --file 12 --size 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := textindex.SearchRequest{
				Keyword:  strings.Join(args, " "),
				KbID:     kbID,
				FileID:   fileID,
				PageNum:  page,
				PageSize: size,
			}
			return withApp(cmd, func(a *app) error {
				res, err := a.text.Search(cmd.Context(), req)
				if err != nil {
					return err
				}

				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(res)
				}
				if len(res.Hits) == 0 {
					out.Statusf("🔍", "No results for %q", req.Keyword)
					return nil
				}
				out.Header(fmt.Sprintf("%d result(s) for %q", res.Total, req.Keyword))
				for i, h := range res.Hits {
					out.Statusf(fmt.Sprintf("%2d.", req.Offset()+i+1), "file %s chunk %d  (score %.3f)", h.FileID, h.ChunkIndex, h.Score)
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", out.Highlight(h.Highlight))
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&kbID, "kb", 0, "Restrict to a library")
	cmd.Flags().Int64Var(&fileID, "file", 0, "Restrict to a file")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&size, "size", 10, "Results per page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
