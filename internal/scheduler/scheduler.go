// Package scheduler keeps the index fresh in the background: one worker
// re-crawls local roots and one worker per cloud provider re-syncs every
// linked account, each on its own interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Aman-CERP/unifind/internal/crawler"
	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// DefaultInterval is the pause between cycles of every worker.
const DefaultInterval = 10 * time.Minute

// ErrLocked is returned by Start when another process runs a scheduler on
// the same data directory.
var ErrLocked = errors.New("scheduler already running in another process")

// LocalCrawler re-walks an owner's roots.
type LocalCrawler interface {
	CrawlRoots(ctx context.Context, ownerID string, roots []string, mode crawler.Mode) (crawler.CrawlStats, error)
}

// CloudSyncer syncs every linked account of one provider.
type CloudSyncer interface {
	SyncProvider(ctx context.Context, storage store.StorageType) (synced, failed int, err error)
}

// OwnerLister lists owners with indexed entries of a storage type.
type OwnerLister interface {
	DistinctOwners(ctx context.Context, storage store.StorageType) ([]string, error)
}

// Config configures a Scheduler.
type Config struct {
	// DataDir holds the process lock. Empty disables the lock.
	DataDir string

	LocalInterval   time.Duration
	DriveInterval   time.Duration
	DropboxInterval time.Duration

	// Roots returns the directories re-crawled for an owner.
	Roots func(ownerID string) []string
}

// Scheduler runs the background workers. Create it with New; the zero
// value is not usable.
type Scheduler struct {
	cfg     Config
	owners  OwnerLister
	crawler LocalCrawler
	syncer  CloudSyncer

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	lock     *processLock
}

// New creates a scheduler. syncer may be nil when no provider is configured.
func New(cfg Config, owners OwnerLister, c LocalCrawler, syncer CloudSyncer) *Scheduler {
	if cfg.LocalInterval <= 0 {
		cfg.LocalInterval = DefaultInterval
	}
	if cfg.DriveInterval <= 0 {
		cfg.DriveInterval = DefaultInterval
	}
	if cfg.DropboxInterval <= 0 {
		cfg.DropboxInterval = DefaultInterval
	}
	if cfg.Roots == nil {
		cfg.Roots = func(string) []string { return nil }
	}
	return &Scheduler{
		cfg:     cfg,
		owners:  owners,
		crawler: c,
		syncer:  syncer,
		stopCh:  make(chan struct{}),
	}
}

// Start launches one worker per source type and returns true. Later calls
// return false without starting anything. Non-blocking; use Wait to block
// until the workers exit.
func (s *Scheduler) Start(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return false, nil
	}

	if s.cfg.DataDir != "" {
		lock := newProcessLock(s.cfg.DataDir)
		acquired, err := lock.tryLock()
		if err != nil {
			return false, err
		}
		if !acquired {
			return false, fmt.Errorf("%w (lock: %s)", ErrLocked, lock.path)
		}
		s.lock = lock
	}
	s.started = true

	s.launch(ctx, "local", s.cfg.LocalInterval, s.localCycle)
	if s.syncer != nil {
		s.launch(ctx, store.StorageGoogleDrive.String(), s.cfg.DriveInterval, s.cloudCycle(store.StorageGoogleDrive))
		s.launch(ctx, store.StorageDropbox.String(), s.cfg.DropboxInterval, s.cloudCycle(store.StorageDropbox))
	}

	slog.Info("scheduler_started",
		slog.Duration("local_interval", s.cfg.LocalInterval),
		slog.Duration("drive_interval", s.cfg.DriveInterval),
		slog.Duration("dropbox_interval", s.cfg.DropboxInterval))
	return true, nil
}

func (s *Scheduler) launch(ctx context.Context, name string, interval time.Duration, cycle func(context.Context)) {
	s.wg.Add(1)
	go s.worker(ctx, name, interval, cycle)
}

// worker runs cycle, then sleeps interval, until stopped.
func (s *Scheduler) worker(ctx context.Context, name string, interval time.Duration, cycle func(context.Context)) {
	defer s.wg.Done()

	// Stop cancels the cycle in flight as well as the sleep.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		s.runCycle(ctx, name, cycle)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Debug("scheduler_worker_stopped", slog.String("worker", name))
			return
		case <-timer.C:
		}
	}
}

// runCycle keeps a panicking cycle from killing its worker.
func (s *Scheduler) runCycle(ctx context.Context, name string, cycle func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler_cycle_panic",
				slog.String("worker", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	cycle(ctx)
	slog.Debug("scheduler_cycle_completed",
		slog.String("worker", name),
		slog.Duration("duration", time.Since(start)))
}

// localCycle re-crawls the roots of every owner with local entries.
func (s *Scheduler) localCycle(ctx context.Context) {
	owners, err := s.owners.DistinctOwners(ctx, store.StorageLocal)
	if err != nil {
		slog.Warn("scheduler_owners_failed", slog.String("error", err.Error()))
		return
	}

	for _, owner := range owners {
		if ctx.Err() != nil {
			return
		}
		roots := s.cfg.Roots(owner)
		if len(roots) == 0 {
			continue
		}
		if _, err := s.crawler.CrawlRoots(ctx, owner, roots, crawler.ModeNewOnly); err != nil {
			slog.Warn("scheduled_crawl_failed",
				slog.String("owner", owner),
				uferrors.LogAttrs(err))
		}
	}
}

func (s *Scheduler) cloudCycle(storage store.StorageType) func(context.Context) {
	return func(ctx context.Context) {
		synced, failed, err := s.syncer.SyncProvider(ctx, storage)
		if err != nil {
			slog.Warn("scheduled_sync_failed",
				slog.String("provider", storage.String()),
				uferrors.LogAttrs(err))
			return
		}
		slog.Info("scheduled_sync_completed",
			slog.String("provider", storage.String()),
			slog.Int("synced", synced),
			slog.Int("failed", failed))
	}
}

// Stop signals the workers, waits for them and releases the process lock.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock != nil {
		if err := s.lock.unlock(); err != nil {
			slog.Warn("scheduler_unlock_failed", slog.String("error", err.Error()))
		}
	}
}

// Wait blocks until every worker has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Started reports whether Start has launched the workers.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
