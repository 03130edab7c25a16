package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/unifind/internal/config"
	"github.com/Aman-CERP/unifind/internal/crawler"
	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/provider"
	"github.com/Aman-CERP/unifind/internal/search"
	"github.com/Aman-CERP/unifind/internal/service"
	"github.com/Aman-CERP/unifind/internal/status"
	"github.com/Aman-CERP/unifind/internal/store"
)

// IndexLockFileName is held by any process that has the search index open.
const IndexLockFileName = "index.lock"

// app is the wired set of components behind a command.
type app struct {
	cfg     *config.Config
	store   *store.SQLiteStore
	backend *store.BleveBackend
	tracker *status.Tracker
	crawler *crawler.Crawler
	syncer  *provider.Syncer
	svc     *service.Service

	indexLock *flock.Flock
}

// appOptions selects what openApp wires.
type appOptions struct {
	// searchIndex opens the bleve index, which one process at a time may
	// hold. Without it, crawl and search are unavailable.
	searchIndex bool
	// launcher overrides the OS file-manager launcher.
	launcher service.Launcher
}

// openApp opens the store and wires the service for cfg.
func openApp(cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, tracker: status.NewTracker()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a.store, err = store.NewSQLiteStore(cfg.IndexPath())
	if err != nil {
		return nil, uferrors.New(uferrors.ErrCodeStoreUnavailable, "failed to open index store", err).
			WithDetail("path", cfg.IndexPath())
	}

	var (
		crawlRunner service.CrawlRunner
		searcher    search.Searcher
	)
	if opts.searchIndex {
		a.indexLock = flock.New(filepath.Join(cfg.DataDir, IndexLockFileName))
		locked, lerr := a.indexLock.TryLock()
		if lerr != nil {
			return nil, fmt.Errorf("failed to lock search index: %w", lerr)
		}
		if !locked {
			a.indexLock = nil
			return nil, uferrors.New(uferrors.ErrCodeBackendUnavailable, "search index is in use by another unifind process", nil).
				WithSuggestion("Stop 'unifind serve' or use its MCP tools instead")
		}

		a.backend, err = store.NewBleveBackend(cfg.SearchIndexPath(), store.BleveConfig{
			PrefixBoost: cfg.Search.PrefixBoost,
			FuzzyBoost:  cfg.Search.FuzzyBoost,
		})
		if err != nil {
			return nil, uferrors.BackendUnavailable(err)
		}

		a.crawler = crawler.New(a.store, a.backend, a.tracker, crawler.Options{
			BatchSize:       cfg.Crawl.BatchSize,
			ExcludePatterns: cfg.Crawl.ExcludeDirs,
		})
		crawlRunner = a.crawler
		searcher = search.NewCoordinator(a.backend, a.store, search.Config{
			DefaultLimit:   cfg.Search.DefaultLimit,
			MaxLimit:       cfg.Search.MaxLimit,
			BackendTimeout: cfg.Search.BackendTimeoutDuration(),
		})
	}

	a.syncer, err = newSyncer(cfg, a.store)
	if err != nil {
		return nil, err
	}

	a.svc = service.New(a.store, crawlRunner, a.tracker, searcher, service.Options{
		Roots:    a.defaultRoots,
		Launcher: opts.launcher,
		Syncer:   a.syncer,
	})
	return a, nil
}

// defaultRoots gives the configured owner the configured roots.
func (a *app) defaultRoots(ownerID string) []string {
	if ownerID == a.cfg.Owner {
		return a.cfg.CrawlRoots()
	}
	return nil
}

// rebuildIfRecreated refills an empty search index from the store.
func (a *app) rebuildIfRecreated(ctx context.Context) error {
	if a.backend == nil || !a.backend.Recreated() {
		return nil
	}
	n, err := a.crawler.RebuildSearchIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	slog.Info("search_index_rebuilt", slog.Int("entries", n))
	return nil
}

// Close waits for background work and releases everything in reverse order.
func (a *app) Close() {
	if a.svc != nil {
		a.svc.Close()
	}
	var errs []error
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.indexLock != nil {
		errs = append(errs, a.indexLock.Unlock())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("app_close_failed", slog.String("error", err.Error()))
	}
}

// newSyncer builds the provider adapters from cfg.
func newSyncer(cfg *config.Config, st *store.SQLiteStore) (*provider.Syncer, error) {
	timeout := cfg.Sync.ProviderTimeoutDuration()
	httpClient := &http.Client{Timeout: timeout}

	drive, err := provider.NewDrive(provider.DriveOptions{
		PageSize:  int64(cfg.Sync.PageSize),
		Limiter:   rate.NewLimiter(rate.Limit(cfg.Sync.RequestsPerSecond), cfg.Sync.Burst),
		CacheSize: cfg.Sync.ClientCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create drive provider: %w", err)
	}
	dbx, err := provider.NewDropbox(provider.DropboxOptions{
		Limiter:    rate.NewLimiter(rate.Limit(cfg.Sync.RequestsPerSecond), cfg.Sync.Burst),
		CacheSize:  cfg.Sync.ClientCacheSize,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dropbox provider: %w", err)
	}

	refreshers := map[store.StorageType]provider.TokenRefresher{}
	if g := cfg.Providers.Google; g.ClientID != "" {
		refreshers[store.StorageGoogleDrive] = provider.NewGoogleRefresher(g.ClientID, g.ClientSecret, g.TokenURL, httpClient)
	}
	if d := cfg.Providers.Dropbox; d.AppKey != "" {
		refreshers[store.StorageDropbox] = provider.NewDropboxRefresher(d.AppKey, d.AppSecret, httpClient)
	}

	return provider.NewSyncer(st, provider.AccountTokens{Accounts: st}, provider.SyncerOptions{
		Timeout:    timeout,
		Refreshers: refreshers,
	}, drive, dbx), nil
}

// dirSize sums file sizes under path. Missing paths count as zero.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
