package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/unifind/internal/crawler"
	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/provider"
	"github.com/Aman-CERP/unifind/internal/search"
	"github.com/Aman-CERP/unifind/internal/status"
	"github.com/Aman-CERP/unifind/internal/store"
)

// --- Test Helpers ---

type fakeLauncher struct {
	mu       sync.Mutex
	revealed []string
}

func (f *fakeLauncher) Reveal(_ context.Context, path string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revealed = append(f.revealed, path)
	return nil
}

type fakeDrive struct {
	mu      sync.Mutex
	objects []provider.RemoteObject
	tokens  []string
	err     error
}

func (f *fakeDrive) Name() store.StorageType { return store.StorageGoogleDrive }

func (f *fakeDrive) List(_ context.Context, token string) ([]provider.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return f.objects, nil
}

func (f *fakeDrive) Download(_ context.Context, token string, e *store.Entry) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("drive:" + e.CloudObjectID + ":" + token)), nil
}

func (f *fakeDrive) WebURL(e *store.Entry) string {
	return "https://drive.example/" + e.CloudObjectID
}

type harness struct {
	svc      *Service
	store    *store.SQLiteStore
	launcher *fakeLauncher
	drive    *fakeDrive
	home     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	backend, err := store.NewBleveBackend("", store.DefaultBleveConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	tracker := status.NewTracker()
	c := crawler.New(st, backend, tracker, crawler.Options{})
	coord := search.NewCoordinator(backend, st, search.DefaultConfig())

	drive := &fakeDrive{}
	syncer := provider.NewSyncer(st, provider.AccountTokens{Accounts: st}, provider.SyncerOptions{
		Retry: uferrors.RetryConfig{MaxRetries: 0, Multiplier: 1},
	}, drive)

	home := t.TempDir()
	launcher := &fakeLauncher{}
	svc := New(st, c, tracker, coord, Options{
		Roots:    func(owner string) []string { return []string{filepath.Join(home, owner)} },
		Launcher: launcher,
		Syncer:   syncer,
	})
	t.Cleanup(svc.Close)

	return &harness{svc: svc, store: st, launcher: launcher, drive: drive, home: home}
}

func (h *harness) writeFile(t *testing.T, owner, rel, content string) string {
	t.Helper()
	p := filepath.Join(h.home, owner, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func (h *harness) crawl(t *testing.T, owner string) {
	t.Helper()
	_, err := h.svc.StartCrawl(context.Background(), owner)
	require.NoError(t, err)
	h.svc.Wait()
}

func (h *harness) link(t *testing.T, owner, email string) Account {
	t.Helper()
	acct, err := h.svc.LinkAccount(context.Background(), owner, "google_drive", email, "access-"+owner, "")
	require.NoError(t, err)
	return acct
}

// --- start_crawl / get_status / search ---

func TestService_CrawlThenSearch(t *testing.T) {
	// Given: a file under alice's root
	h := newHarness(t)
	p := h.writeFile(t, "alice", "docs/tax-return.pdf", "pdf")
	ctx := context.Background()

	before, err := h.svc.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, status.PhaseNotStarted, before.Phase)

	// When: a crawl is started and finishes
	accepted, err := h.svc.StartCrawl(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)
	h.svc.Wait()

	// Then: status is completed and the file is searchable by prefix
	st, err := h.svc.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, status.PhaseCompleted, st.Phase)

	resp, err := h.svc.Search(ctx, "alice", search.Query{Text: "tax"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, p, resp.Results[0].Path)

	counts, err := h.svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[store.StorageLocal])
}

func TestService_StartCrawlExplicitRoots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartCrawl(ctx, "alice", filepath.Join(h.home, "missing"))
	assert.True(t, uferrors.IsValidation(err))

	dir := t.TempDir()
	_, err = h.svc.StartCrawl(ctx, "alice", dir)
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, []string{dir}, h.svc.RootsFor("alice"))
	assert.Equal(t, []string{filepath.Join(h.home, "bob")}, h.svc.RootsFor("bob"))
}

func TestService_StartCrawlValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.StartCrawl(context.Background(), "")
	assert.True(t, uferrors.IsValidation(err))

	_, err = h.svc.GetStatus(context.Background(), "")
	assert.True(t, uferrors.IsValidation(err))
}

func TestService_SearchEmptyQuery(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Search(context.Background(), "alice", search.Query{Text: " "})
	assert.True(t, uferrors.IsValidation(err))
}

// --- sync_account ---

func TestService_SyncAccount(t *testing.T) {
	// Given: alice linked a Drive account holding one file
	h := newHarness(t)
	h.drive.objects = []provider.RemoteObject{{ID: "f1", Name: "Holiday Plan.docx", Path: store.DrivePath("f1")}}
	acct := h.link(t, "alice", "alice@example.com")
	ctx := context.Background()

	// When: she syncs it
	accepted, err := h.svc.SyncAccount(ctx, "alice", acct.ID, "drive")
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)
	h.svc.Wait()

	// Then: the file is searchable through the store path
	resp, err := h.svc.Search(ctx, "alice", search.Query{Text: "holiday"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "drive://f1", resp.Results[0].Path)
	assert.Equal(t, []string{"access-alice"}, h.drive.tokens)
}

func TestService_SyncAccountNowReportsFailure(t *testing.T) {
	// Given: a linked account whose provider rejects the token
	h := newHarness(t)
	h.drive.err = uferrors.New(uferrors.ErrCodeTokenInvalid, "token rejected", nil)
	acct := h.link(t, "alice", "alice@example.com")
	ctx := context.Background()

	// When: syncing in the foreground
	_, err := h.svc.SyncAccountNow(ctx, "alice", acct.ID, "google_drive")

	// Then: the failure reaches the caller and no sync time is recorded
	require.Error(t, err)
	assert.True(t, uferrors.IsSyncFailure(err), "got %v", err)
	list, err := h.svc.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].LastSynced.IsZero())

	// And: a healthy provider syncs and reports the listing
	h.drive.err = nil
	h.drive.objects = []provider.RemoteObject{{ID: "f1", Name: "a.txt", Path: store.DrivePath("f1")}}
	stats, err := h.svc.SyncAccountNow(ctx, "alice", acct.ID, "google_drive")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Listed)
}

func TestService_SyncAccountErrors(t *testing.T) {
	h := newHarness(t)
	acct := h.link(t, "alice", "alice@example.com")
	dbx, err := h.svc.LinkAccount(context.Background(), "alice", "dropbox", "alice@example.com", "tok", "")
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name      string
		owner     string
		accountID string
		provider  string
		check     func(error) bool
	}{
		{name: "unknown account", owner: "alice", accountID: "nope", provider: "google_drive", check: uferrors.IsNotFound},
		{name: "other owner", owner: "bob", accountID: acct.ID, provider: "google_drive", check: uferrors.IsAuthorization},
		{name: "unknown provider", owner: "alice", accountID: acct.ID, provider: "box", check: uferrors.IsValidation},
		{name: "local is not a provider", owner: "alice", accountID: acct.ID, provider: "local", check: uferrors.IsValidation},
		{name: "provider mismatch", owner: "alice", accountID: acct.ID, provider: "dropbox", check: uferrors.IsValidation},
		{name: "provider not configured", owner: "alice", accountID: dbx.ID, provider: "dropbox", check: uferrors.IsValidation},
		{name: "missing account id", owner: "alice", accountID: "", provider: "google_drive", check: uferrors.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.SyncAccount(ctx, tt.owner, tt.accountID, tt.provider)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
	h.svc.Wait()
	assert.Empty(t, h.drive.tokens)
}

// --- open ---

func TestService_OpenLocal(t *testing.T) {
	h := newHarness(t)
	p := h.writeFile(t, "alice", "notes.txt", "hi")
	h.crawl(t, "alice")

	action, err := h.svc.Open(context.Background(), "alice", p)
	require.NoError(t, err)
	assert.Equal(t, ActionRevealed, action.Action)
	assert.Equal(t, []string{p}, h.launcher.revealed)
}

func TestService_OpenChecksOwnership(t *testing.T) {
	// Given: a file indexed for alice only
	h := newHarness(t)
	p := h.writeFile(t, "alice", "secret.txt", "x")
	h.crawl(t, "alice")
	ctx := context.Background()

	// When: bob opens alice's path
	_, err := h.svc.Open(ctx, "bob", p)

	// Then: access is denied and nothing is revealed
	assert.True(t, uferrors.IsAuthorization(err), "got %v", err)
	assert.Empty(t, h.launcher.revealed)

	_, err = h.svc.Open(ctx, "bob", "/nowhere/at/all")
	assert.True(t, uferrors.IsNotFound(err))

	_, _, err = h.svc.Download(ctx, "bob", p)
	assert.True(t, uferrors.IsAuthorization(err))
}

func TestService_OpenRemovedFile(t *testing.T) {
	h := newHarness(t)
	p := h.writeFile(t, "alice", "gone.txt", "x")
	h.crawl(t, "alice")
	require.NoError(t, os.Remove(p))

	_, err := h.svc.Open(context.Background(), "alice", p)
	assert.True(t, uferrors.IsNotFound(err))
	assert.Empty(t, h.launcher.revealed)
}

func TestService_OpenCloud(t *testing.T) {
	h := newHarness(t)
	h.drive.objects = []provider.RemoteObject{{ID: "f9", Name: "Deck.pptx", Path: store.DrivePath("f9")}}
	acct := h.link(t, "alice", "alice@example.com")
	_, err := h.svc.SyncAccount(context.Background(), "alice", acct.ID, "google_drive")
	require.NoError(t, err)
	h.svc.Wait()

	action, err := h.svc.Open(context.Background(), "alice", "drive://f9")
	require.NoError(t, err)
	assert.Equal(t, ActionURL, action.Action)
	assert.Equal(t, "https://drive.example/f9", action.URL)
	assert.Empty(t, h.launcher.revealed)
}

// --- download ---

func TestService_DownloadLocal(t *testing.T) {
	h := newHarness(t)
	p := h.writeFile(t, "alice", "a/readme.md", "hello world")
	h.crawl(t, "alice")
	ctx := context.Background()

	rc, info, err := h.svc.Download(ctx, "alice", p)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()

	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, "readme.md", info.Name)

	_, _, err = h.svc.Download(ctx, "alice", filepath.Dir(p))
	assert.True(t, uferrors.IsValidation(err))
}

func TestService_DownloadCloudUsesAccountToken(t *testing.T) {
	h := newHarness(t)
	h.drive.objects = []provider.RemoteObject{{ID: "f1", Name: "report.pdf", Path: store.DrivePath("f1")}}
	acct := h.link(t, "alice", "alice@example.com")
	_, err := h.svc.SyncAccount(context.Background(), "alice", acct.ID, "google_drive")
	require.NoError(t, err)
	h.svc.Wait()

	rc, info, err := h.svc.Download(context.Background(), "alice", "drive://f1")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()

	assert.Equal(t, "drive:f1:access-alice", string(data))
	assert.Equal(t, int64(-1), info.Size)
	assert.Equal(t, store.StorageGoogleDrive, info.StorageType)
}

// --- accounts ---

func TestService_Accounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.drive.objects = []provider.RemoteObject{{ID: "f1", Name: "kept.txt", Path: store.DrivePath("f1"), Modified: time.Now()}}

	acct := h.link(t, "alice", "alice@example.com")
	again := h.link(t, "alice", "alice@example.com")
	assert.Equal(t, acct.ID, again.ID)

	_, err := h.svc.LinkAccount(ctx, "alice", "box", "a@b.c", "tok", "")
	assert.True(t, uferrors.IsValidation(err))
	_, err = h.svc.LinkAccount(ctx, "alice", "dropbox", " ", "tok", "")
	assert.True(t, uferrors.IsValidation(err))

	_, err = h.svc.SyncAccount(ctx, "alice", acct.ID, "google_drive")
	require.NoError(t, err)
	h.svc.Wait()

	list, err := h.svc.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice@example.com", list[0].Email)
	assert.False(t, list[0].LastSynced.IsZero())

	others, err := h.svc.ListAccounts(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, others)

	err = h.svc.DeleteAccount(ctx, "bob", acct.ID)
	assert.True(t, uferrors.IsAuthorization(err))

	require.NoError(t, h.svc.DeleteAccount(ctx, "alice", acct.ID))
	list, err = h.svc.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Entries outlive the account.
	entry, err := h.store.GetEntry(ctx, "alice", "drive://f1")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestStaticIdentity(t *testing.T) {
	owner, err := StaticIdentity("alice").CurrentOwner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	_, err = StaticIdentity("").CurrentOwner(context.Background())
	assert.Error(t, err)
}
