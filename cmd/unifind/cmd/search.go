package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/search"
	"github.com/Aman-CERP/unifind/internal/store"
	"github.com/Aman-CERP/unifind/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		offset     int
		service    string
		fileType   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search file and folder names across every source",
		Long: `Search the index by name. Local matches come first and match prefixes
with small typos tolerated; cloud matches contain the query anywhere in
the name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			cfg := opts.cfg

			q := search.Query{
				Text:     strings.Join(args, " "),
				Limit:    limit,
				Offset:   offset,
				FileType: fileType,
			}
			if service != "" {
				st, err := store.ParseStorageType(service)
				if err != nil {
					return uferrors.ValidationError("service must be local, google_drive or dropbox", err)
				}
				q.Service = st
			}

			a, err := openApp(cfg, appOptions{searchIndex: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.rebuildIfRecreated(cmd.Context()); err != nil {
				return err
			}

			resp, err := a.svc.Search(cmd.Context(), cfg.Owner, q)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			ui.NewResultsRenderer(cmd.OutOrStdout(), opts.noColorOutput()).Render(q.Text, resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default 10, max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many results")
	cmd.Flags().StringVar(&service, "service", "", "Only one source: local, google_drive or dropbox")
	cmd.Flags().StringVarP(&fileType, "type", "t", "", "Only one kind: "+strings.Join(search.FileTypes, ", "))
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}
