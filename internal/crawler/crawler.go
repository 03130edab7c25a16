// Package crawler walks local directory trees and records new files and
// folders in the Index Store and the Search Backend.
package crawler

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/status"
	"github.com/Aman-CERP/unifind/internal/store"
)

// DefaultBatchSize is the flush threshold when none is configured.
const DefaultBatchSize = 500

// Mode selects how much work a crawl repeats.
type Mode int

const (
	// ModeFull examines every entry under the root.
	ModeFull Mode = iota
	// ModeNewOnly additionally skips the files of directories whose
	// modification time has not advanced since they were indexed.
	ModeNewOnly
)

func (m Mode) String() string {
	if m == ModeNewOnly {
		return "new_only"
	}
	return "full"
}

// Options configures a Crawler.
type Options struct {
	// BatchSize caps buffered entries between flushes (0 = DefaultBatchSize).
	BatchSize int
	// ExcludePatterns extend the built-in exclusion set.
	ExcludePatterns []string
}

// CrawlStats summarizes one crawl.
type CrawlStats struct {
	RunID         string
	Scanned       int
	Added         int
	Skipped       int
	Excluded      int
	FailedBatches int
	// Reindexed counts stored rows that reached the search backend only on
	// this run, after an earlier backend write failed.
	Reindexed int
	Duration  time.Duration
}

// Crawler discovers local entries and writes the new ones.
type Crawler struct {
	store     store.IndexStore
	backend   store.SearchBackend
	tracker   *status.Tracker
	excluder  *Excluder
	batchSize int
}

// New creates a crawler. tracker may be nil.
func New(st store.IndexStore, backend store.SearchBackend, tracker *status.Tracker, opts Options) *Crawler {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Crawler{
		store:     st,
		backend:   backend,
		tracker:   tracker,
		excluder:  NewExcluder(opts.ExcludePatterns),
		batchSize: batch,
	}
}

// Crawl walks root for owner. See CrawlRoots.
func (c *Crawler) Crawl(ctx context.Context, ownerID, root string, mode Mode) (CrawlStats, error) {
	return c.CrawlRoots(ctx, ownerID, []string{root}, mode)
}

// CrawlRoots walks every root for owner, inserting entries not yet indexed.
// The owner's status is in_progress during the walk and completed after it,
// whether or not the walk failed. A failed batch is logged and counted; the
// walk continues. Rows stored by an earlier run but never written to the
// search backend are indexed before the walk starts.
func (c *Crawler) CrawlRoots(ctx context.Context, ownerID string, roots []string, mode Mode) (CrawlStats, error) {
	run := &crawlRun{
		Crawler: c,
		ctx:     ctx,
		ownerID: ownerID,
		mode:    mode,
		stats:   CrawlStats{RunID: uuid.NewString()},
	}
	run.logger = slog.With(slog.String("run_id", run.stats.RunID), slog.String("owner", ownerID))

	start := time.Now()
	c.setPhase(ownerID, status.PhaseInProgress)
	run.logger.Info("crawl_started",
		slog.Any("roots", roots),
		slog.String("mode", mode.String()))

	run.indexPending()

	var firstErr error
	for _, root := range roots {
		if err := run.walk(root); err != nil {
			run.logger.Warn("crawl_root_failed",
				slog.String("root", root),
				uferrors.LogAttrs(err))
			if c.tracker != nil {
				c.tracker.SetError(ownerID, err.Error())
			}
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	run.stats.Duration = time.Since(start)
	c.setPhase(ownerID, status.PhaseCompleted)
	run.logger.Info("crawl_completed",
		slog.Int("scanned", run.stats.Scanned),
		slog.Int("added", run.stats.Added),
		slog.Int("skipped", run.stats.Skipped),
		slog.Int("excluded", run.stats.Excluded),
		slog.Int("failed_batches", run.stats.FailedBatches),
		slog.Int("reindexed", run.stats.Reindexed),
		slog.Duration("duration", run.stats.Duration))

	return run.stats, firstErr
}

func (c *Crawler) setPhase(ownerID string, phase status.Phase) {
	if c.tracker != nil {
		c.tracker.Set(ownerID, phase)
	}
}

// crawlRun holds the state of one CrawlRoots call.
type crawlRun struct {
	*Crawler
	ctx     context.Context
	ownerID string
	mode    Mode
	stats   CrawlStats
	logger  *slog.Logger

	buf []*store.Entry
	// unchanged holds directories whose direct children are known indexed.
	unchanged map[string]struct{}
	// advanced holds indexed directories whose mtime moved forward, with the
	// new mtime to store once their children are written.
	advanced map[string]time.Time
}

// indexPending writes the owner's stored but unsearchable local rows to the
// search backend. It stops at the first failure; the rows stay pending.
func (r *crawlRun) indexPending() {
	var after int64
	for {
		page, err := r.store.ListUnindexed(r.ctx, r.ownerID, store.StorageLocal, after, r.batchSize)
		if err != nil {
			r.logger.Warn("crawl_pending_read_failed", slog.String("error", err.Error()))
			return
		}
		if len(page) == 0 {
			return
		}
		if err := r.backend.Index(r.ctx, page); err != nil {
			r.failBatch(len(page), err)
			return
		}
		if err := r.markIndexed(page); err != nil {
			return
		}
		r.stats.Reindexed += len(page)
		after = page[len(page)-1].ID
	}
}

func (r *crawlRun) markIndexed(entries []*store.Entry) error {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	if err := r.store.MarkSearchIndexed(r.ctx, r.ownerID, paths); err != nil {
		r.logger.Warn("crawl_mark_indexed_failed",
			slog.Int("batch_size", len(paths)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (r *crawlRun) walk(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return uferrors.ValidationError("invalid crawl root", err).WithDetail("root", root)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return uferrors.New(uferrors.ErrCodeFileNotFound, "crawl root not accessible", err).
			WithDetail("root", absRoot)
	}
	if !info.IsDir() {
		return uferrors.New(uferrors.ErrCodeInvalidPath, "crawl root is not a directory", nil).
			WithDetail("root", absRoot)
	}

	r.unchanged = make(map[string]struct{})
	r.advanced = make(map[string]time.Time)
	failedBefore := r.stats.FailedBatches
	currentTop := ""

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == absRoot {
				return walkErr
			}
			r.logger.Debug("crawl_entry_unreadable",
				slog.String("path", path),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}

		if !utf8.ValidString(path) {
			r.logger.Debug("crawl_entry_invalid_name", slog.String("path", strings.ToValidUTF8(path, "?")))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Flush when the walk leaves a top-level subtree.
		if top := topComponent(rel); top != currentTop {
			r.flush()
			currentTop = top
		}

		if d.IsDir() {
			if r.excluder.ExcludeDir(rel) {
				r.stats.Excluded++
				return filepath.SkipDir
			}
		} else if r.excluder.ExcludeFile(rel) {
			r.stats.Excluded++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			r.logger.Debug("crawl_stat_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		r.stats.Scanned++

		if r.mode == ModeNewOnly {
			if d.IsDir() {
				r.checkUnchanged(path, info.ModTime())
			} else if _, ok := r.unchanged[filepath.Dir(path)]; ok {
				r.stats.Skipped++
				return nil
			}
		}

		r.buf = append(r.buf, toEntry(r.ownerID, path, d, info))
		if len(r.buf) >= r.batchSize {
			r.flush()
		}
		return nil
	})

	r.flush()
	if err == nil && r.stats.FailedBatches == failedBefore {
		r.recordAdvanced()
	}
	return err
}

// checkUnchanged marks dir when its row exists and its mtime has not moved
// past the stored one. Adding, removing or renaming a direct child always
// advances the directory mtime.
func (r *crawlRun) checkUnchanged(dir string, modTime time.Time) {
	existing, err := r.store.GetEntry(r.ctx, r.ownerID, dir)
	if err != nil || existing == nil || existing.LastModified.IsZero() {
		return
	}
	if modTime.After(existing.LastModified) {
		r.advanced[dir] = modTime.UTC()
		return
	}
	r.unchanged[dir] = struct{}{}
}

// recordAdvanced stores the new mtime of directories whose children were
// all written, so the next new-only crawl can skip them again. It runs only
// after a root finished without failed batches.
func (r *crawlRun) recordAdvanced() {
	for dir, modTime := range r.advanced {
		if err := r.store.UpdateLastModified(r.ctx, r.ownerID, dir, modTime); err != nil {
			r.logger.Debug("crawl_dir_mtime_update_failed",
				slog.String("path", dir),
				slog.String("error", err.Error()))
		}
	}
}

// flush writes the buffered entries that are not yet indexed: the store
// first, then the search backend. Rows are flagged searchable only after
// the backend accepted them, so a backend failure leaves them pending for
// the next run.
func (r *crawlRun) flush() {
	if len(r.buf) == 0 {
		return
	}
	batch := r.buf
	r.buf = nil

	paths := make([]string, len(batch))
	for i, e := range batch {
		paths[i] = e.Path
	}

	existing, err := r.store.ExistingPaths(r.ctx, r.ownerID, paths)
	if err != nil {
		r.failBatch(len(batch), err)
		return
	}

	fresh := batch[:0]
	for _, e := range batch {
		if _, ok := existing[e.Path]; ok {
			r.stats.Skipped++
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		r.reportProgress()
		return
	}

	inserted, err := r.store.InsertNew(r.ctx, fresh)
	if err != nil {
		r.failBatch(len(fresh), err)
		return
	}
	r.stats.Added += inserted
	r.stats.Skipped += len(fresh) - inserted

	if err := r.backend.Index(r.ctx, fresh); err != nil {
		r.failBatch(len(fresh), err)
		return
	}
	_ = r.markIndexed(fresh)
	r.reportProgress()
}

func (r *crawlRun) failBatch(size int, cause error) {
	r.stats.FailedBatches++
	err := uferrors.PartialWriteFailure("crawl batch not written", cause).
		WithDetail("batch_size", fmt.Sprint(size))
	r.logger.Warn("crawl_batch_failed", uferrors.LogAttrs(err))
	r.reportProgress()
}

func (r *crawlRun) reportProgress() {
	if r.tracker != nil {
		r.tracker.UpdateProgress(r.ownerID, r.stats.Scanned, r.stats.Added)
	}
}

func topComponent(rel string) string {
	if i := strings.IndexRune(rel, filepath.Separator); i >= 0 {
		return rel[:i]
	}
	return rel
}

func toEntry(ownerID, path string, d fs.DirEntry, info fs.FileInfo) *store.Entry {
	e := &store.Entry{
		OwnerID:      ownerID,
		Name:         d.Name(),
		Path:         path,
		IsFolder:     d.IsDir(),
		StorageType:  store.StorageLocal,
		LastModified: info.ModTime().UTC(),
	}
	if !e.IsFolder {
		e.MimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}
	return e
}

// RebuildSearchIndex re-indexes every local entry of the store into the
// search backend and flags the rows searchable. Used when the backend was
// recreated empty.
func (c *Crawler) RebuildSearchIndex(ctx context.Context) (int, error) {
	var (
		after int64
		total int
	)
	for {
		page, err := c.store.ListEntries(ctx, store.StorageLocal, after, c.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to read entries: %w", err)
		}
		if len(page) == 0 {
			break
		}
		if err := c.backend.Index(ctx, page); err != nil {
			return total, fmt.Errorf("failed to index entries: %w", err)
		}
		if err := c.markOwnersIndexed(ctx, page); err != nil {
			return total, err
		}
		total += len(page)
		after = page[len(page)-1].ID
	}

	slog.Info("search_index_rebuilt", slog.Int("entries", total))
	return total, nil
}

func (c *Crawler) markOwnersIndexed(ctx context.Context, page []*store.Entry) error {
	byOwner := make(map[string][]string)
	for _, e := range page {
		byOwner[e.OwnerID] = append(byOwner[e.OwnerID], e.Path)
	}
	for owner, paths := range byOwner {
		if err := c.store.MarkSearchIndexed(ctx, owner, paths); err != nil {
			return fmt.Errorf("failed to mark entries indexed: %w", err)
		}
	}
	return nil
}
