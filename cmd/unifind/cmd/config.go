package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/unifind/internal/config"
	"github.com/Aman-CERP/unifind/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Manage the user configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/unifind/config.yaml)
  3. File given with --config
  4. .env files (working directory, data directory)
  5. Environment variables (UNIFIND_*, GOOGLE_CLIENT_*, DROPBOX_APP_*)`,
		Example: `  # Create the user config with defaults
  unifind config init

  # Show the effective configuration
  unifind config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create the user configuration file with defaults",
		Annotations: map[string]string{annotationSkipSetup: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout(), optionsFrom(cmd).noColorOutput())
			path := config.GetUserConfigPath()

			if config.UserConfigExists() {
				if !force {
					out.Warning("User configuration already exists")
					out.Hint("Location: " + path)
					out.Hint("Use --force to replace it with defaults (a backup is kept)")
					return nil
				}
				backup, err := config.BackupUserConfig()
				if err != nil {
					return fmt.Errorf("failed to backup config: %w", err)
				}
				out.Statusf("", "Backup: %s", backup)
			}

			if err := config.NewConfig().WriteYAML(path); err != nil {
				return err
			}
			out.Success("Created user configuration")
			out.Hint("Location: " + path)
			out.Hint("Set crawl.roots, then run 'unifind index'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after merging all sources. Secrets are omitted from JSON output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := optionsFrom(cmd).cfg
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			redacted := *cfg
			redacted.Providers.Google.ClientSecret = redact(cfg.Providers.Google.ClientSecret)
			redacted.Providers.Dropbox.AppSecret = redact(cfg.Providers.Dropbox.AppSecret)
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the user config file path",
		Annotations: map[string]string{annotationSkipSetup: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
