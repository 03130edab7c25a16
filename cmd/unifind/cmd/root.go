// Package cmd provides the CLI commands for unifind.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/unifind/internal/config"
	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/logging"
	"github.com/Aman-CERP/unifind/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	noColor    bool
	plain      bool

	cfg            *config.Config
	loggingCleanup func()
}

type optionsKey struct{}

// NewRootCmd creates the root command for the unifind CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "unifind",
		Short: "One search box for your local files, Google Drive and Dropbox",
		Long: `unifind keeps a per-user index of file and folder names from local
disks and linked cloud accounts, and answers prefix and typo-tolerant
name searches across all of them.

Run 'unifind serve' to expose the index to AI assistants over MCP, or use
the subcommands directly from a terminal.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("unifind version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a config file (default ~/.config/unifind/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no spinner)")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		return opts.setup(c)
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		opts.teardown()
		return nil
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newOpenCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and starts logging. Commands annotated with
// skipSetup run without either.
func (o *globalOptions) setup(c *cobra.Command) error {
	if c.Annotations[annotationSkipSetup] == "true" {
		c.SetContext(context.WithValue(c.Context(), optionsKey{}, o))
		return nil
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logCfg := logging.CLIConfig(cfg.DataDir, cfg.Server.LogLevel, o.debug)
	if c.Annotations[annotationServe] == "true" {
		// stdout carries JSON-RPC; never mirror logs to the terminal.
		logCfg = logging.ServeConfig(cfg.DataDir, cfg.Server.LogLevel)
		if o.debug {
			logCfg.Level = "debug"
		}
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	slog.Debug("command_started", slog.String("command", c.CommandPath()), slog.String("version", version.Version))

	c.SetContext(context.WithValue(c.Context(), optionsKey{}, o))
	return nil
}

func (o *globalOptions) teardown() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

const (
	annotationSkipSetup = "unifind/skip-setup"
	annotationServe     = "unifind/serve"
)

// optionsFrom returns the options installed by the root command.
func optionsFrom(c *cobra.Command) *globalOptions {
	if o, ok := c.Context().Value(optionsKey{}).(*globalOptions); ok {
		return o
	}
	return &globalOptions{cfg: config.NewConfig()}
}

// noColor reports whether output should be unstyled.
func (o *globalOptions) noColorOutput() bool {
	return o.noColor || os.Getenv("NO_COLOR") != ""
}

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(os.Stderr, uferrors.FormatForCLI(err))
	}
	return err
}
