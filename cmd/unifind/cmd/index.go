package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/unifind/internal/crawler"
	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/ui"
)

// progressInterval is how often the tracker is polled for display.
const progressInterval = 200 * time.Millisecond

func newIndexCmd() *cobra.Command {
	var newOnly bool

	cmd := &cobra.Command{
		Use:   "index [roots...]",
		Short: "Crawl local directories into the index",
		Long: `Walk the given directories (default: the configured roots) and record
every file and folder name. Entries already indexed are kept as they are.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := crawler.ModeFull
			if newOnly {
				mode = crawler.ModeNewOnly
			}
			return runIndex(cmd, args, mode)
		},
	}

	cmd.Flags().BoolVar(&newOnly, "new-only", false, "Skip directories unchanged since they were indexed")
	return cmd
}

func runIndex(cmd *cobra.Command, roots []string, mode crawler.Mode) error {
	opts := optionsFrom(cmd)
	cfg := opts.cfg
	ctx := cmd.Context()

	if len(roots) == 0 {
		roots = cfg.CrawlRoots()
	}
	if len(roots) == 0 {
		return uferrors.ValidationError("no directories to index", nil).
			WithSuggestion("Pass directories or set crawl.roots in the config")
	}

	a, err := openApp(cfg, appOptions{searchIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rebuildIfRecreated(ctx); err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColorOutput()),
		ui.WithTitle(cfg.Owner)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	type result struct {
		stats crawler.CrawlStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := a.crawler.CrawlRoots(ctx, cfg.Owner, roots, mode)
		done <- result{stats, err}
	}()

	res := pollProgress(ctx, a, cfg.Owner, renderer, done)
	renderer.Complete(ui.CompletionStats{
		Roots:    roots,
		Scanned:  res.stats.Scanned,
		Added:    res.stats.Added,
		Skipped:  res.stats.Skipped,
		Excluded: res.stats.Excluded,
		Duration: res.stats.Duration,
		Err:      res.err,
	})
	return res.err
}

// pollProgress forwards tracker snapshots to r until the crawl reports.
func pollProgress[T any](ctx context.Context, a *app, owner string, r ui.Renderer, done <-chan T) T {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			return res
		case <-ticker.C:
			r.UpdateProgress(ui.EventFromState(a.tracker.Get(owner)))
		case <-ctx.Done():
			// The crawl observes ctx and reports shortly.
			return <-done
		}
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the index store",
		Long: `Re-add every local entry in the index store to the search index.
Use this after the search index was deleted or damaged; no directories
are walked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := optionsFrom(cmd).cfg
			a, err := openApp(cfg, appOptions{searchIndex: true})
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			n, err := a.crawler.RebuildSearchIndex(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt search index: %d entries in %s\n", n, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
