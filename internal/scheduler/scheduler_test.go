package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/unifind/internal/crawler"
	"github.com/Aman-CERP/unifind/internal/store"
)

type fakeOwners struct {
	owners []string
	err    error
}

func (f *fakeOwners) DistinctOwners(_ context.Context, storage store.StorageType) ([]string, error) {
	if storage != store.StorageLocal {
		return nil, nil
	}
	return f.owners, f.err
}

type fakeCrawler struct {
	mu      sync.Mutex
	calls   map[string]int
	modes   []crawler.Mode
	failFor string
	panicky bool
}

func (f *fakeCrawler) CrawlRoots(_ context.Context, owner string, _ []string, mode crawler.Mode) (crawler.CrawlStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[owner]++
	f.modes = append(f.modes, mode)
	if f.panicky {
		panic("crawler exploded")
	}
	if owner == f.failFor {
		return crawler.CrawlStats{}, errors.New("permission denied")
	}
	return crawler.CrawlStats{}, nil
}

func (f *fakeCrawler) count(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[owner]
}

type fakeSyncer struct {
	drive   atomic.Int32
	dropbox atomic.Int32
	err     error
}

func (f *fakeSyncer) SyncProvider(_ context.Context, storage store.StorageType) (int, int, error) {
	switch storage {
	case store.StorageGoogleDrive:
		f.drive.Add(1)
	case store.StorageDropbox:
		f.dropbox.Add(1)
	}
	return 1, 1, f.err
}

func rootsFor(owner string) []string { return []string{"/home/" + owner} }

func fastConfig() Config {
	return Config{
		LocalInterval:   5 * time.Millisecond,
		DriveInterval:   5 * time.Millisecond,
		DropboxInterval: 5 * time.Millisecond,
		Roots:           rootsFor,
	}
}

func TestScheduler_StartTwiceStartsOnce(t *testing.T) {
	// Given: a scheduler with long intervals
	cfg := fastConfig()
	cfg.LocalInterval = time.Hour
	cfg.DriveInterval = time.Hour
	cfg.DropboxInterval = time.Hour
	c := &fakeCrawler{}
	sy := &fakeSyncer{}
	s := New(cfg, &fakeOwners{owners: []string{"alice"}}, c, sy)

	// When: Start is called twice
	first, err := s.Start(context.Background())
	require.NoError(t, err)
	second, err := s.Start(context.Background())
	require.NoError(t, err)

	// Then: only the first call starts workers, each running one cycle
	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, s.Started())

	assert.Eventually(t, func() bool {
		return c.count("alice") == 1 && sy.drive.Load() == 1 && sy.dropbox.Load() == 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, 1, c.count("alice"))
	assert.Equal(t, int32(1), sy.drive.Load())
}

func TestScheduler_FailingOwnerDoesNotStopLoop(t *testing.T) {
	// Given: one owner whose crawl always fails
	c := &fakeCrawler{failFor: "bob"}
	s := New(fastConfig(), &fakeOwners{owners: []string{"bob", "carol"}}, c, nil)

	// When: the scheduler runs several cycles
	_, err := s.Start(context.Background())
	require.NoError(t, err)

	// Then: both owners keep being crawled in new-only mode
	assert.Eventually(t, func() bool {
		return c.count("bob") >= 3 && c.count("carol") >= 3
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.modes {
		assert.Equal(t, crawler.ModeNewOnly, m)
	}
}

func TestScheduler_SyncErrorDoesNotStopLoop(t *testing.T) {
	sy := &fakeSyncer{err: errors.New("store offline")}
	s := New(fastConfig(), &fakeOwners{}, &fakeCrawler{}, sy)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sy.drive.Load() >= 3 && sy.dropbox.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestScheduler_PanicRecovered(t *testing.T) {
	c := &fakeCrawler{panicky: true}
	s := New(fastConfig(), &fakeOwners{owners: []string{"dave"}}, c, nil)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return c.count("dave") >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestScheduler_ContextCancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(fastConfig(), &fakeOwners{}, &fakeCrawler{}, &fakeSyncer{})

	_, err := s.Start(ctx)
	require.NoError(t, err)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after cancel")
	}
	s.Stop()
}

func TestScheduler_ProcessLock(t *testing.T) {
	// Given: a scheduler holding the data directory lock
	dir := t.TempDir()
	cfg := fastConfig()
	cfg.DataDir = dir
	cfg.LocalInterval = time.Hour

	first := New(cfg, &fakeOwners{}, &fakeCrawler{}, nil)
	ok, err := first.Start(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// When: a second scheduler on the same directory starts
	second := New(cfg, &fakeOwners{}, &fakeCrawler{}, nil)
	ok, err = second.Start(context.Background())

	// Then: it is refused
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, second.Started())

	// And: once the first stops, the lock is free again
	first.Stop()
	third := New(cfg, &fakeOwners{}, &fakeCrawler{}, nil)
	ok, err = third.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	third.Stop()
}

func TestScheduler_StopIdempotent(t *testing.T) {
	s := New(fastConfig(), &fakeOwners{}, &fakeCrawler{}, nil)
	_, err := s.Start(context.Background())
	require.NoError(t, err)

	s.Stop()
	assert.NotPanics(t, s.Stop)
}
