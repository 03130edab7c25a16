package cmd

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/output"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage linked Google Drive and Dropbox accounts",
	}
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsLinkCmd())
	cmd.AddCommand(newAccountsRemoveCmd())
	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List linked accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := optionsFrom(cmd).cfg
			a, err := openApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.svc.ListAccounts(cmd.Context(), cfg.Owner)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No linked accounts. Link one with 'unifind accounts link'.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tPROVIDER\tEMAIL\tLAST SYNCED")
			for _, acct := range accounts {
				synced := "never"
				if !acct.LastSynced.IsZero() {
					synced = acct.LastSynced.Local().Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", acct.ID, acct.Provider, acct.Email, synced)
			}
			return tw.Flush()
		},
	}
}

func newAccountsLinkCmd() *cobra.Command {
	var (
		email        string
		accessToken  string
		refreshToken string
		tokenStdin   bool
	)

	cmd := &cobra.Command{
		Use:   "link <google_drive|dropbox>",
		Short: "Link a cloud account with tokens obtained from the provider",
		Long: `Store OAuth tokens for a cloud account. Obtain the tokens with the
provider's OAuth flow for your registered app. With --token-stdin the
access token and optional refresh token are read from the first two lines
of stdin, keeping them out of shell history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokenStdin {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					accessToken = strings.TrimSpace(scanner.Text())
				}
				if scanner.Scan() {
					refreshToken = strings.TrimSpace(scanner.Text())
				}
			}
			if accessToken == "" {
				return uferrors.ValidationError("an access token is required", nil).
					WithSuggestion("Pass --access-token or --token-stdin")
			}

			cfg := optionsFrom(cmd).cfg
			a, err := openApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.svc.LinkAccount(cmd.Context(), cfg.Owner, args[0], email, accessToken, refreshToken)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout(), optionsFrom(cmd).noColorOutput())
			out.Successf("Linked %s account %s (id %s)", acct.Provider, acct.Email, acct.ID)
			out.Hint(fmt.Sprintf("Run 'unifind sync %s' to index it", acct.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "OAuth access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().BoolVar(&tokenStdin, "token-stdin", false, "Read tokens from stdin")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAccountsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Unlink an account; its indexed entries are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := optionsFrom(cmd).cfg
			a, err := openApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.DeleteAccount(cmd.Context(), cfg.Owner, args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout(), optionsFrom(cmd).noColorOutput()).
				Successf("Removed account %s; its entries stay searchable", args[0])
			return nil
		},
	}
}
