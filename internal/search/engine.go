package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// DefaultBackendTimeout bounds the liveness probe and the backend query.
const DefaultBackendTimeout = 5 * time.Second

// localOnly limits the backend to local entries. Cloud rows are served
// from the store.
var localOnly = []store.StorageType{store.StorageLocal}

// CloudSearcher is the part of the index store the coordinator reads.
type CloudSearcher interface {
	SearchCloud(ctx context.Context, q store.CloudQuery) ([]*store.Entry, error)
}

// Config tunes the coordinator.
type Config struct {
	DefaultLimit   int
	MaxLimit       int
	BackendTimeout time.Duration
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:   DefaultLimit,
		MaxLimit:       MaxLimit,
		BackendTimeout: DefaultBackendTimeout,
	}
}

// Coordinator fans a query out to the search backend and the index store.
type Coordinator struct {
	backend store.SearchBackend
	cloud   CloudSearcher
	merger  Merger
	config  Config
}

// Ensure Coordinator implements Searcher.
var _ Searcher = (*Coordinator)(nil)

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMerger replaces the default ConcatMerger.
func WithMerger(m Merger) CoordinatorOption {
	return func(c *Coordinator) {
		c.merger = m
	}
}

// NewCoordinator creates a coordinator. Zero config fields take defaults.
func NewCoordinator(backend store.SearchBackend, cloud CloudSearcher, config Config, opts ...CoordinatorOption) *Coordinator {
	if config.BackendTimeout <= 0 {
		config.BackendTimeout = DefaultBackendTimeout
	}
	c := &Coordinator{
		backend: backend,
		cloud:   cloud,
		merger:  ConcatMerger{},
		config:  config,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search validates q, probes the backend and queries both sources
// concurrently. Each source gets the same limit/offset window. If the
// backend is unreachable the whole request fails.
func (c *Coordinator) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()

	q, err := normalize(q, c.config.DefaultLimit, c.config.MaxLimit)
	if err != nil {
		return nil, err
	}

	if err := c.ping(ctx); err != nil {
		slog.Warn("search_backend_unavailable",
			slog.String("owner", q.OwnerID),
			slog.String("error", err.Error()))
		return nil, uferrors.BackendUnavailable(err)
	}

	var backendResults, storeResults []*Result

	g, gctx := errgroup.WithContext(ctx)

	if searchesBackend(q) {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, c.config.BackendTimeout)
			defer cancel()

			entries, err := c.backend.Search(bctx, store.BackendQuery{
				OwnerID:     q.OwnerID,
				Text:        q.Text,
				Types:       localOnly,
				FoldersOnly: q.FileType == FileTypeFolder,
				FilesOnly:   q.FileType != "" && q.FileType != FileTypeFolder,
				Limit:       q.Limit,
				Offset:      q.Offset,
			})
			if err != nil {
				return uferrors.BackendUnavailable(err)
			}
			backendResults = wrap(entries, SourceBackend)
			return nil
		})
	}

	if types := cloudTypes(q); len(types) > 0 {
		g.Go(func() error {
			entries, err := c.cloud.SearchCloud(gctx, store.CloudQuery{
				OwnerID: q.OwnerID,
				Text:    q.Text,
				Types:   types,
				Limit:   q.Limit,
				Offset:  q.Offset,
			})
			if err != nil {
				return uferrors.InternalError("index store search failed", err)
			}
			storeResults = wrap(entries, SourceStore)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := c.merger.Merge(backendResults, storeResults)
	resp := &Response{
		Results: applyFileType(merged, q.FileType),
		Offset:  q.Offset,
		Limit:   q.Limit,
		HasMore: len(merged) >= q.Limit,
	}

	slog.Debug("search_completed",
		slog.String("owner", q.OwnerID),
		slog.String("query", q.Text),
		slog.Int("backend_results", len(backendResults)),
		slog.Int("store_results", len(storeResults)),
		slog.Int("results", len(resp.Results)),
		slog.Bool("has_more", resp.HasMore),
		slog.Duration("duration", time.Since(start)))

	return resp, nil
}

func (c *Coordinator) ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, c.config.BackendTimeout)
	defer cancel()
	return c.backend.Ping(pctx)
}

func wrap(entries []*store.Entry, source string) []*Result {
	results := make([]*Result, len(entries))
	for i, e := range entries {
		results[i] = &Result{Entry: e, Source: source}
	}
	return results
}
