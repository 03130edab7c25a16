package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/unifind/internal/service"
	"github.com/Aman-CERP/unifind/internal/ui"
)

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Reveal a local entry or print the web URL of a cloud entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := optionsFrom(cmd).cfg
			a, err := openApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			action, err := a.svc.Open(cmd.Context(), cfg.Owner, args[0])
			if err != nil {
				return err
			}
			if action.Action == service.ActionURL {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), action.URL)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Revealed %s\n", action.Path)
			return nil
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <path>",
		Short: "Copy an indexed file to a local path",
		Long: `Download an indexed file. Cloud files are fetched with the linked
account's token. Use -o - to write the content to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := optionsFrom(cmd).cfg
			a, err := openApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			rc, info, err := a.svc.Download(cmd.Context(), cfg.Owner, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = rc.Close() }()

			if output == "-" {
				_, err := io.Copy(cmd.OutOrStdout(), rc)
				return err
			}
			if output == "" {
				output = filepath.Base(info.Name)
			}
			n, err := writeFile(output, rc)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s (%s)\n", output, ui.FormatBytes(n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: the entry name in the current directory)")
	return cmd
}

// writeFile copies r into path through a temp file so a failed download
// never leaves a partial file behind.
func writeFile(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".unifind-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, nil
}
