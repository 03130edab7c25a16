package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/output"
	"github.com/Aman-CERP/unifind/internal/provider"
	"github.com/Aman-CERP/unifind/internal/service"
)

func newSyncCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sync [account-id]",
		Short: "Sync linked cloud accounts into the index",
		Long: `Refresh the index of one linked account, or of every account with --all.
The account's access token is renewed first when client credentials are
configured.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return uferrors.ValidationError("pass one account id or --all", nil)
			}
			cfg := optionsFrom(cmd).cfg
			ctx := cmd.Context()

			a, err := openApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.svc.ListAccounts(ctx, cfg.Owner)
			if err != nil {
				return err
			}
			targets := accounts
			if all && len(accounts) == 0 {
				output.New(cmd.OutOrStdout(), optionsFrom(cmd).noColorOutput()).
					Warning("No linked accounts. Link one with 'unifind accounts link'.")
				return nil
			}
			if !all {
				targets = nil
				for _, acct := range accounts {
					if acct.ID == args[0] {
						targets = append(targets, acct)
					}
				}
				if len(targets) == 0 {
					return uferrors.AccountNotFoundError(args[0]).
						WithSuggestion("Run 'unifind accounts list' to see linked accounts")
				}
			}

			return syncAccounts(cmd, a.svc, cfg.Owner, targets)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Sync every linked account")
	return cmd
}

// foregroundSyncer syncs one account and returns its outcome.
type foregroundSyncer interface {
	SyncAccountNow(ctx context.Context, ownerID, accountID, providerName string) (provider.SyncStats, error)
}

// syncAccounts syncs each target in turn and prints one line per account.
// Every account is attempted; the command fails if any of them did.
func syncAccounts(cmd *cobra.Command, svc foregroundSyncer, owner string, targets []service.Account) error {
	out := output.New(cmd.OutOrStdout(), optionsFrom(cmd).noColorOutput())
	failed := 0
	for _, acct := range targets {
		stats, err := svc.SyncAccountNow(cmd.Context(), owner, acct.ID, acct.Provider.String())
		if err != nil {
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			failed++
			slog.Warn("sync_account_failed",
				slog.String("account_id", acct.ID),
				slog.String("owner", owner),
				uferrors.LogAttrs(err))
			out.Error(fmt.Sprintf("failed %s  %s  %s: %s", acct.ID, acct.Provider, acct.Email, err))
			continue
		}
		out.Successf("synced %s  %s  %s  (%d objects)", acct.ID, acct.Provider, acct.Email, stats.Listed)
	}
	if failed > 0 {
		return uferrors.SyncFailure(fmt.Sprintf("%d of %d accounts failed to sync", failed, len(targets)), nil).
			WithSuggestion("See the log file in the data directory for details")
	}
	return nil
}
