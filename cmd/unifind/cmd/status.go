package cmd

import (
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/unifind/internal/scheduler"
	"github.com/Aman-CERP/unifind/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show entry counts, linked accounts and index size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := optionsFrom(cmd)
			cfg := opts.cfg

			a, err := openApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			counts, err := a.svc.Summary(ctx, cfg.Owner)
			if err != nil {
				return err
			}
			accounts, err := a.svc.ListAccounts(ctx, cfg.Owner)
			if err != nil {
				return err
			}

			info := ui.StatusInfo{
				Owner:            cfg.Owner,
				Entries:          make(map[string]int, len(counts)),
				StoreSize:        dirSize(cfg.IndexPath()) + dirSize(cfg.IndexPath()+"-wal"),
				SearchSize:       dirSize(cfg.SearchIndexPath()),
				SchedulerRunning: schedulerRunning(cfg.DataDir),
			}
			for t, n := range counts {
				info.Entries[t.String()] = n
			}
			for _, acct := range accounts {
				info.Accounts = append(info.Accounts, ui.AccountInfo{
					ID:         acct.ID,
					Provider:   acct.Provider.String(),
					Email:      acct.Email,
					LastSynced: acct.LastSynced,
				})
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), opts.noColorOutput())
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

// schedulerRunning probes the scheduler lock without keeping it.
func schedulerRunning(dataDir string) bool {
	lock := flock.New(filepath.Join(dataDir, scheduler.LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return false
	}
	if locked {
		_ = lock.Unlock()
		return false
	}
	return true
}
