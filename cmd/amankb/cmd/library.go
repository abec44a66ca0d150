package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/library"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/store"
)

func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"kb"},
		Short:   "Manage knowledge-base libraries and their index configuration",
	}
	cmd.AddCommand(
		newLibraryCreateCmd(),
		newLibraryShowCmd(),
		newLibrarySetModeCmd(),
		newLibraryResetCmd(),
	)
	return cmd
}

func newLibraryCreateCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indexMode, ok := store.ParseIndexMode(mode)
			if !ok {
				return kberrors.Validation("invalid index mode %q: expected TEXT_OS, VECTOR or HYBRID", mode)
			}
			return withApp(cmd, func(a *app) error {
				lib := &store.Library{
					Name:         args[0],
					IndexMode:    indexMode,
					IndexVersion: 1,
					IndexStatus:  store.IndexAvailable,
					TextConfig:   library.EmptyConfig,
					VectorConfig: library.EmptyConfig,
				}
				if indexMode.UsesVector() {
					lib.VectorConfig = library.DefaultVectorConfig
				}
				if err := a.store.CreateLibrary(cmd.Context(), lib); err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				out.Successf("Created library %d (%s)", lib.ID, lib.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(store.ModeTextOS), "Index mode: TEXT_OS, VECTOR or HYBRID")
	return cmd
}

func newLibraryShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <kbId>",
		Short: "Show a library's index configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kbID, err := parseID("library id", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				lib, err := a.store.GetLibrary(cmd.Context(), kbID)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOutput {
					return out.JSON(lib)
				}
				printLibrary(out, lib)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newLibrarySetModeCmd() *cobra.Command {
	var textConfig, vectorConfig string

	cmd := &cobra.Command{
		Use:   "set-mode <kbId> <mode>",
		Short: "Change the index mode and backend configs",
		Long: `Save a new index configuration. When anything changes the index version
is bumped and the library is marked DISABLED until it is reindexed.`,
		Example: `  amankb library set-mode 1 HYBRID
  amankb library set-mode 1 VECTOR --vector-config '{"model":"bge-m3"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kbID, err := parseID("library id", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				lib, err := a.libraries.SaveIndexConfig(cmd.Context(), kbID, args[1], textConfig, vectorConfig)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				printLibrary(out, lib)
				if lib.IndexStatus == store.IndexDisabled {
					out.Warningf("Run 'amankb reindex kb %d' to rebuild the indexes", lib.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&textConfig, "text-config", "", "Opaque text backend config (JSON)")
	cmd.Flags().StringVar(&vectorConfig, "vector-config", "", "Opaque vector backend config (JSON)")
	return cmd
}

func newLibraryResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <kbId>",
		Short: "Reset the index configuration to TEXT_OS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kbID, err := parseID("library id", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				lib, err := a.libraries.ResetIndexConfig(cmd.Context(), kbID)
				if err != nil {
					return err
				}
				printLibrary(output.New(cmd.OutOrStdout()), lib)
				return nil
			})
		},
	}
}

func printLibrary(out *output.Writer, lib *store.Library) {
	out.Header(fmt.Sprintf("Library %d: %s", lib.ID, lib.Name))
	out.KV(
		output.Field{Label: "Mode", Value: string(lib.Mode())},
		output.Field{Label: "Version", Value: fmt.Sprint(lib.IndexVersion)},
		output.Field{Label: "Status", Value: string(lib.IndexStatus)},
		output.Field{Label: "Text config", Value: lib.TextConfig},
		output.Field{Label: "Vector config", Value: lib.VectorConfig},
	)
}

func printLibraryResult(out *output.Writer, res *index.LibraryResult) {
	out.Header(fmt.Sprintf("Library %d reindex (%s)", res.KbID, res.Mode))
	fields := []output.Field{{Label: "Status", Value: string(res.Status)}}
	if res.TextRan {
		fields = append(fields, output.Field{Label: "Text docs", Value: fmt.Sprint(res.TextDocs)})
	}
	out.KV(fields...)
	for _, item := range res.Vector {
		switch {
		case item.Skipped:
			out.Warningf("file %d skipped: %s", item.FileID, item.Message)
		case item.OK:
			out.Successf("file %d: %d chunk(s) upserted", item.FileID, item.Upserted)
		default:
			out.Errorf("file %d failed: %s", item.FileID, item.Message)
		}
	}
}
