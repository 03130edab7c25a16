package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/unifind/internal/mcp"
	"github.com/Aman-CERP/unifind/internal/scheduler"
	"github.com/Aman-CERP/unifind/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		transport   string
		noScheduler bool
		downloadDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server and the background sync scheduler",
		Long: `Serve the index to MCP clients over stdio.

While serving, a scheduler re-crawls local roots and re-syncs every linked
cloud account on the configured intervals. stdout is reserved for JSON-RPC;
logs go to the log file in the data directory.`,
		Annotations: map[string]string{annotationServe: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := optionsFrom(cmd).cfg
			if transport == "" {
				transport = cfg.Server.Transport
			}
			return runServe(cmd.Context(), cmd, serveOptions{
				transport:   transport,
				scheduler:   !noScheduler,
				downloadDir: downloadDir,
			})
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport (stdio)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run background crawls and syncs")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "Where downloads that are not returned inline are saved")

	return cmd
}

type serveOptions struct {
	transport   string
	scheduler   bool
	downloadDir string
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg := optionsFrom(cmd).cfg

	a, err := openApp(cfg, appOptions{searchIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rebuildIfRecreated(ctx); err != nil {
		return err
	}

	if opts.scheduler {
		sched := scheduler.New(scheduler.Config{
			DataDir:         cfg.DataDir,
			LocalInterval:   cfg.Sync.LocalIntervalDuration(),
			DriveInterval:   cfg.Sync.DriveIntervalDuration(),
			DropboxInterval: cfg.Sync.DropboxIntervalDuration(),
			Roots:           a.svc.RootsFor,
		}, a.store, a.crawler, a.syncer)

		// index.lock is held by now, so no other process can own the
		// scheduler lock for this data directory.
		if _, err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	server, err := mcp.NewServer(a.svc, service.StaticIdentity(cfg.Owner), opts.downloadDir)
	if err != nil {
		return err
	}
	return server.Serve(ctx, opts.transport)
}
