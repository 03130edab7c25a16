package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// fakeProvider returns scripted listings and records the tokens it saw.
type fakeProvider struct {
	mu      sync.Mutex
	name    store.StorageType
	objects []RemoteObject
	errs    []error // consumed one per List call before objects are returned
	tokens  []string
	calls   int
}

func (f *fakeProvider) Name() store.StorageType { return f.name }

func (f *fakeProvider) List(ctx context.Context, token string) ([]RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens = append(f.tokens, token)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return append([]RemoteObject(nil), f.objects...), nil
}

func (f *fakeProvider) Download(ctx context.Context, token string, e *store.Entry) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("content of " + e.Name)), nil
}

func (f *fakeProvider) WebURL(e *store.Entry) string { return "https://example.com/" + e.CloudObjectID }

type fakeRefresher struct {
	token Token
	err   error
	calls int
}

func (r *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	r.calls++
	return r.token, r.err
}

func noDelayRetry() uferrors.RetryConfig {
	cfg := uferrors.ProviderRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func linkAccount(t *testing.T, st *store.SQLiteStore, owner string, provider store.StorageType, email string) *store.LinkedAccount {
	t.Helper()
	acct := &store.LinkedAccount{
		OwnerID:      owner,
		Provider:     provider,
		Email:        email,
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
	}
	require.NoError(t, st.SaveAccount(context.Background(), acct))
	return acct
}

func newSyncer(st *store.SQLiteStore, opts SyncerOptions, providers ...Provider) *Syncer {
	if opts.Retry.Multiplier == 0 {
		opts.Retry = noDelayRetry()
	}
	return NewSyncer(st, AccountTokens{Accounts: st}, opts, providers...)
}

func TestSyncer_RenameUpdatesSingleRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageGoogleDrive, "alice@example.com")

	fake := &fakeProvider{name: store.StorageGoogleDrive, objects: []RemoteObject{
		{ID: "f1", Name: "Plan.docx", Path: store.DrivePath("f1"), MimeType: "application/msword"},
	}}
	s := newSyncer(st, SyncerOptions{}, fake)

	// When: syncing, renaming at the provider, and syncing again
	_, err := s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)
	require.NoError(t, err)
	fake.objects[0].Name = "Plan v2.docx"
	stats, err := s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)
	require.NoError(t, err)

	// Then: one row carries the new name
	assert.Equal(t, 1, stats.Listed)
	counts, err := st.CountEntries(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.StorageGoogleDrive])

	e, err := st.GetEntry(ctx, "alice", store.DrivePath("f1"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Plan v2.docx", e.Name)
	assert.Equal(t, acct.ID, e.AccountID)
	assert.Equal(t, "f1", e.CloudObjectID)

	// And: the sync time is recorded
	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.LastSynced.IsZero())
}

func TestSyncer_DropboxRelistUpdatesTimestamp(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageDropbox, "alice@example.com")

	first := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	fake := &fakeProvider{name: store.StorageDropbox, objects: []RemoteObject{
		{ID: "id:abc", Name: "report.pdf", Path: store.DropboxPath("/Work/report.pdf"), Modified: first},
	}}
	s := newSyncer(st, SyncerOptions{}, fake)

	_, err := s.Sync(ctx, acct.ID, "alice", store.StorageDropbox)
	require.NoError(t, err)

	// When: the file is relisted with a newer server_modified
	second := first.Add(48 * time.Hour)
	fake.objects[0].Modified = second
	_, err = s.Sync(ctx, acct.ID, "alice", store.StorageDropbox)
	require.NoError(t, err)

	// Then: still one row, with the new timestamp
	e, err := st.GetEntry(ctx, "alice", "dropbox:///Work/report.pdf")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, second.Equal(e.LastModified))

	counts, err := st.CountEntries(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.StorageDropbox])
}

func TestSyncer_DropboxRenameKeepsOneRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageDropbox, "alice@example.com")

	fake := &fakeProvider{name: store.StorageDropbox, objects: []RemoteObject{
		{ID: "id:abc", Name: "report.pdf", Path: store.DropboxPath("/Work/report.pdf")},
	}}
	s := newSyncer(st, SyncerOptions{}, fake)
	_, err := s.Sync(ctx, acct.ID, "alice", store.StorageDropbox)
	require.NoError(t, err)

	// When: the file is renamed with a case change at the provider
	fake.objects[0].Name = "Report-Final.pdf"
	fake.objects[0].Path = store.DropboxPath("/Work/Report-Final.pdf")
	_, err = s.Sync(ctx, acct.ID, "alice", store.StorageDropbox)
	require.NoError(t, err)

	// Then: one row remains, at the new path
	counts, err := st.CountEntries(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.StorageDropbox])

	old, err := st.GetEntry(ctx, "alice", "dropbox:///Work/report.pdf")
	require.NoError(t, err)
	assert.Nil(t, old)
	e, err := st.GetEntry(ctx, "alice", "dropbox:///Work/Report-Final.pdf")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "id:abc", e.CloudObjectID)
}

func TestSyncer_MissingAccountIsSyncFailure(t *testing.T) {
	st := newTestStore(t)
	fake := &fakeProvider{name: store.StorageGoogleDrive}
	s := newSyncer(st, SyncerOptions{}, fake)

	_, err := s.Sync(context.Background(), "no-such-account", "alice", store.StorageGoogleDrive)

	require.Error(t, err)
	assert.True(t, uferrors.IsSyncFailure(err))
	assert.Zero(t, fake.calls)
}

func TestSyncer_ProviderMismatchIsSyncFailure(t *testing.T) {
	st := newTestStore(t)
	acct := linkAccount(t, st, "alice", store.StorageDropbox, "a@x")
	fake := &fakeProvider{name: store.StorageGoogleDrive}
	s := newSyncer(st, SyncerOptions{}, fake)

	// When: syncing a dropbox account as drive
	_, err := s.Sync(context.Background(), acct.ID, "alice", store.StorageGoogleDrive)

	// Then: the token lookup fails
	assert.True(t, uferrors.IsSyncFailure(err))
}

func TestSyncer_UnsupportedProvider(t *testing.T) {
	st := newTestStore(t)
	s := newSyncer(st, SyncerOptions{})

	_, err := s.Sync(context.Background(), "x", "alice", store.StorageDropbox)
	assert.Equal(t, uferrors.ErrCodeUnsupportedProvider, uferrors.GetCode(err))
}

func TestSyncer_ListingFailureWritesNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")

	fake := &fakeProvider{
		name:    store.StorageGoogleDrive,
		objects: []RemoteObject{{ID: "1", Name: "a", Path: store.DrivePath("1")}},
		errs:    []error{uferrors.New(uferrors.ErrCodeTokenInvalid, "bad token", nil)},
	}
	s := newSyncer(st, SyncerOptions{}, fake)

	_, err := s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)

	// Then: nothing is stored and the sync time is untouched
	require.Error(t, err)
	assert.True(t, uferrors.IsSyncFailure(err))
	assert.Equal(t, 1, fake.calls)
	counts, err := st.CountEntries(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, counts[store.StorageGoogleDrive])

	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSynced.IsZero())
}

func TestSyncer_RetriesTransientErrors(t *testing.T) {
	st := newTestStore(t)
	acct := linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")

	fake := &fakeProvider{
		name:    store.StorageGoogleDrive,
		objects: []RemoteObject{{ID: "1", Name: "a", Path: store.DrivePath("1")}},
		errs:    []error{uferrors.NetworkError("connection reset", errors.New("reset"))},
	}
	s := newSyncer(st, SyncerOptions{}, fake)

	stats, err := s.Sync(context.Background(), acct.ID, "alice", store.StorageGoogleDrive)

	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, 1, stats.Listed)
}

func TestSyncer_BreakerOpensOnOutagesOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")

	outage := uferrors.NetworkError("provider down", errors.New("503"))
	badToken := uferrors.New(uferrors.ErrCodeTokenInvalid, "bad token", nil)

	fake := &fakeProvider{name: store.StorageGoogleDrive}
	retry := noDelayRetry()
	retry.MaxRetries = 0
	s := newSyncer(st, SyncerOptions{Retry: retry, BreakerFailures: 2, BreakerReset: time.Hour}, fake)

	// Given: two credential failures
	fake.errs = []error{badToken, badToken}
	_, _ = s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)
	_, _ = s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)

	// Then: the breaker stays closed
	assert.Equal(t, uferrors.StateClosed, s.breakers[store.StorageGoogleDrive].State())

	// When: the provider has two outages
	fake.errs = []error{outage, outage}
	_, _ = s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)
	_, _ = s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)

	// Then: the next sync fails fast without calling the provider
	calls := fake.calls
	_, err := s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)
	require.Error(t, err)
	assert.ErrorIs(t, err, uferrors.ErrCircuitOpen)
	assert.Equal(t, calls, fake.calls)
}

func TestSyncer_RefreshFailureKeepsOldToken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")

	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	fake := &fakeProvider{name: store.StorageGoogleDrive}
	s := newSyncer(st, SyncerOptions{Refreshers: map[store.StorageType]TokenRefresher{
		store.StorageGoogleDrive: refresher,
	}}, fake)

	// When: the scheduled sync runs with a failing refresh
	synced, failed, err := s.SyncProvider(ctx, store.StorageGoogleDrive)

	// Then: the sync still runs with the stored token
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Zero(t, failed)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, []string{acct.AccessToken}, fake.tokens)
}

func TestSyncer_RefreshSuccessUsesNewToken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")

	refresher := &fakeRefresher{token: Token{AccessToken: "fresh"}}
	fake := &fakeProvider{name: store.StorageGoogleDrive}
	s := newSyncer(st, SyncerOptions{Refreshers: map[store.StorageType]TokenRefresher{
		store.StorageGoogleDrive: refresher,
	}}, fake)

	assert.True(t, s.RefreshAccount(ctx, acct))
	_, err := s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)
	require.NoError(t, err)

	assert.Equal(t, []string{"fresh"}, fake.tokens)
	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
}

func TestSyncer_RefreshStoresRotatedRefreshToken(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageDropbox, "a@x")

	// Given: a provider that rotates refresh tokens
	refresher := &fakeRefresher{token: Token{AccessToken: "fresh", RefreshToken: "refresh-rotated"}}
	s := newSyncer(st, SyncerOptions{Refreshers: map[store.StorageType]TokenRefresher{
		store.StorageDropbox: refresher,
	}}, &fakeProvider{name: store.StorageDropbox})

	// When: the account is refreshed
	require.True(t, s.RefreshAccount(ctx, acct))

	// Then: the rotated refresh token replaces the old one
	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, "refresh-rotated", got.RefreshToken)
	assert.Equal(t, "refresh-rotated", acct.RefreshToken)
}

func TestSyncer_RefreshDoesNotMarkSynced(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct := linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")

	// Given: a refresh that succeeds and a listing that fails
	refresher := &fakeRefresher{token: Token{AccessToken: "fresh"}}
	fake := &fakeProvider{name: store.StorageGoogleDrive,
		errs: []error{uferrors.New(uferrors.ErrCodeTokenInvalid, "token rejected", nil)}}
	s := newSyncer(st, SyncerOptions{Refreshers: map[store.StorageType]TokenRefresher{
		store.StorageGoogleDrive: refresher,
	}}, fake)

	// When: the account is refreshed and synced
	require.True(t, s.RefreshAccount(ctx, acct))
	_, err := s.Sync(ctx, acct.ID, "alice", store.StorageGoogleDrive)
	require.Error(t, err)

	// Then: the account still has never synced
	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSynced.IsZero())
}

func TestSyncer_RefreshSkippedWithoutRefresher(t *testing.T) {
	st := newTestStore(t)
	acct := linkAccount(t, st, "alice", store.StorageDropbox, "a@x")
	s := newSyncer(st, SyncerOptions{}, &fakeProvider{name: store.StorageDropbox})

	assert.False(t, s.RefreshAccount(context.Background(), acct))
}

func TestSyncer_SyncProviderContinuesPastFailures(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")
	linkAccount(t, st, "bob", store.StorageGoogleDrive, "b@x")

	fake := &fakeProvider{
		name:    store.StorageGoogleDrive,
		objects: []RemoteObject{{ID: "1", Name: "shared.txt", Path: store.DrivePath("1")}},
		errs:    []error{uferrors.New(uferrors.ErrCodeTokenInvalid, "revoked", nil)},
	}
	s := newSyncer(st, SyncerOptions{}, fake)

	// When: the first account fails
	synced, failed, err := s.SyncProvider(ctx, store.StorageGoogleDrive)

	// Then: the second is still synced
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 1, failed)

	counts, err := st.CountEntries(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.StorageGoogleDrive])
}

func TestSyncer_SameObjectForTwoOwners(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := linkAccount(t, st, "alice", store.StorageGoogleDrive, "a@x")
	b := linkAccount(t, st, "bob", store.StorageGoogleDrive, "b@x")

	fake := &fakeProvider{
		name:    store.StorageGoogleDrive,
		objects: []RemoteObject{{ID: "shared", Name: "Shared.pdf", Path: store.DrivePath("shared")}},
	}
	s := newSyncer(st, SyncerOptions{}, fake)

	_, err := s.Sync(ctx, a.ID, "alice", store.StorageGoogleDrive)
	require.NoError(t, err)
	_, err = s.Sync(ctx, b.ID, "bob", store.StorageGoogleDrive)
	require.NoError(t, err)

	ea, err := st.GetEntry(ctx, "alice", store.DrivePath("shared"))
	require.NoError(t, err)
	eb, err := st.GetEntry(ctx, "bob", store.DrivePath("shared"))
	require.NoError(t, err)
	require.NotNil(t, ea)
	require.NotNil(t, eb)
	assert.Equal(t, a.ID, ea.AccountID)
	assert.Equal(t, b.ID, eb.AccountID)
}
