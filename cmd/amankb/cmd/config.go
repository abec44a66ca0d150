package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amankb/configs"
	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/output"
)

var noSetup = map[string]string{"setup": "none"}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage amankb configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/amankb/config.yaml)
  3. Project config (.amankb.yaml in --dir)
  4. --dir/.env
  5. Environment variables (AMANKB_*)`,
	}

	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(), newConfigPathCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Create the user configuration file (~/.config/amankb/config.yaml, or
$XDG_CONFIG_HOME/amankb/config.yaml). With --project, create .amankb.yaml
in --dir instead.`,
		Example: `  amankb config init
  amankb config init --project --dir /srv/kb`,
		Annotations: noSetup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, template := config.GetUserConfigPath(), configs.UserConfigTemplate
			if project {
				dir, _ := cmd.Flags().GetString("dir")
				path, template = filepath.Join(dir, config.ProjectConfigName), configs.ProjectConfigTemplate
			}
			out := output.New(cmd.OutOrStdout())

			if _, err := os.Stat(path); err == nil && !force {
				out.Warningf("%s already exists (use --force to overwrite)", path)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(template), 0o600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Write .amankb.yaml in --dir")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		savePath   string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if savePath != "" {
				if err := cfg.WriteYAML(savePath); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Wrote %s", savePath)
				return nil
			}
			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&savePath, "save", "", "Write the effective configuration as YAML to this path")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the user config file path",
		Annotations: noSetup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
