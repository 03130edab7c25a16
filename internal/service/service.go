// Package service exposes the request-triggered operations of unifind:
// crawling, status, search, account sync, open and download. Every
// path-addressed operation checks that the entry belongs to the caller.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/unifind/internal/crawler"
	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/provider"
	"github.com/Aman-CERP/unifind/internal/search"
	"github.com/Aman-CERP/unifind/internal/status"
	"github.com/Aman-CERP/unifind/internal/store"
)

// CrawlRunner walks local roots for an owner.
type CrawlRunner interface {
	CrawlRoots(ctx context.Context, ownerID string, roots []string, mode crawler.Mode) (crawler.CrawlStats, error)
}

// AccountSyncer syncs one linked account.
type AccountSyncer interface {
	Provider(storage store.StorageType) (provider.Provider, error)
	RefreshAccount(ctx context.Context, acct *store.LinkedAccount) bool
	Sync(ctx context.Context, accountID, ownerID string, storage store.StorageType) (provider.SyncStats, error)
}

// Accepted acknowledges a request whose work continues in the background.
type Accepted struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OpenAction tells the caller what Open did.
type OpenAction struct {
	// Action is "revealed" for local entries and "url" for cloud entries.
	Action string `json:"action"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
}

// Open actions.
const (
	ActionRevealed = "revealed"
	ActionURL      = "url"
)

// DownloadInfo describes a download stream.
type DownloadInfo struct {
	Name        string            `json:"name"`
	MimeType    string            `json:"mime_type,omitempty"`
	StorageType store.StorageType `json:"storage_type"`
	// Size is -1 when the provider does not report it up front.
	Size int64 `json:"size"`
}

// Options wires the optional collaborators of a Service.
type Options struct {
	// Roots returns the default crawl roots of an owner.
	Roots func(ownerID string) []string
	// Launcher reveals local entries. Nil uses NewExecLauncher.
	Launcher Launcher
	// Syncer syncs cloud accounts. Nil disables sync, open and download of
	// cloud entries.
	Syncer AccountSyncer
	// Tokens resolves account tokens for downloads. Nil reads the store.
	Tokens provider.TokenStore
}

// Service implements the operations over shared components.
type Service struct {
	store    store.IndexStore
	crawler  CrawlRunner
	tracker  *status.Tracker
	searcher search.Searcher
	syncer   AccountSyncer
	tokens   provider.TokenStore
	launcher Launcher
	roots    func(string) []string

	mu         sync.Mutex
	knownRoots map[string][]string

	// Background work outlives the request that started it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a service.
func New(st store.IndexStore, c CrawlRunner, tracker *status.Tracker, searcher search.Searcher, opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		store:      st,
		crawler:    c,
		tracker:    tracker,
		searcher:   searcher,
		syncer:     opts.Syncer,
		tokens:     opts.Tokens,
		launcher:   opts.Launcher,
		roots:      opts.Roots,
		knownRoots: make(map[string][]string),
		ctx:        ctx,
		cancel:     cancel,
	}
	if s.tokens == nil {
		s.tokens = provider.AccountTokens{Accounts: st}
	}
	if s.launcher == nil {
		s.launcher = NewExecLauncher()
	}
	if s.roots == nil {
		s.roots = func(string) []string { return nil }
	}
	return s
}

// StartCrawl begins a full crawl of the owner's roots and returns at once.
// Explicit roots replace the defaults and are remembered for the owner's
// incremental passes. Calling it while a crawl runs restarts tracking.
func (s *Service) StartCrawl(ctx context.Context, ownerID string, roots ...string) (Accepted, error) {
	if ownerID == "" {
		return Accepted{}, uferrors.ValidationError("owner is required", nil)
	}
	if len(roots) > 0 {
		for _, r := range roots {
			if info, err := os.Stat(r); err != nil || !info.IsDir() {
				return Accepted{}, uferrors.New(uferrors.ErrCodeInvalidPath, "crawl root is not a directory", err).
					WithDetail("root", r)
			}
		}
		s.mu.Lock()
		s.knownRoots[ownerID] = roots
		s.mu.Unlock()
	} else {
		roots = s.RootsFor(ownerID)
	}
	if len(roots) == 0 {
		return Accepted{}, uferrors.ValidationError("no crawl roots configured", nil).
			WithSuggestion("Set crawl.roots in the config file or pass a directory")
	}

	s.tracker.Set(ownerID, status.PhaseStarting)
	slog.Info("crawl_accepted", slog.String("owner", ownerID), slog.Any("roots", roots))

	s.goBackground(func(ctx context.Context) {
		if _, err := s.crawler.CrawlRoots(ctx, ownerID, roots, crawler.ModeFull); err != nil {
			slog.Warn("crawl_failed", slog.String("owner", ownerID), uferrors.LogAttrs(err))
		}
	})

	return Accepted{Status: "accepted", Message: "indexing started"}, nil
}

// RootsFor returns the roots last crawled for owner, or the defaults.
func (s *Service) RootsFor(ownerID string) []string {
	s.mu.Lock()
	roots, ok := s.knownRoots[ownerID]
	s.mu.Unlock()
	if ok {
		return roots
	}
	return s.roots(ownerID)
}

// GetStatus returns the owner's indexing state.
func (s *Service) GetStatus(_ context.Context, ownerID string) (status.State, error) {
	if ownerID == "" {
		return status.State{}, uferrors.ValidationError("owner is required", nil)
	}
	return s.tracker.Get(ownerID), nil
}

// Summary reports the owner's entry counts per storage type.
func (s *Service) Summary(ctx context.Context, ownerID string) (map[store.StorageType]int, error) {
	counts, err := s.store.CountEntries(ctx, ownerID)
	if err != nil {
		return nil, uferrors.InternalError("failed to count entries", err)
	}
	return counts, nil
}

// Search runs q scoped to ownerID.
func (s *Service) Search(ctx context.Context, ownerID string, q search.Query) (*search.Response, error) {
	q.OwnerID = ownerID
	return s.searcher.Search(ctx, q)
}

// SyncAccount validates the account and starts its sync in the background.
func (s *Service) SyncAccount(ctx context.Context, ownerID, accountID, providerName string) (Accepted, error) {
	acct, storage, err := s.syncTarget(ctx, ownerID, accountID, providerName)
	if err != nil {
		return Accepted{}, err
	}

	s.goBackground(func(ctx context.Context) {
		if _, err := s.syncNow(ctx, acct, storage); err != nil {
			slog.Warn("sync_account_failed",
				slog.String("account_id", acct.ID),
				slog.String("owner", ownerID),
				uferrors.LogAttrs(err))
		}
	})

	return Accepted{Status: "accepted", Message: "sync started"}, nil
}

// SyncAccountNow validates the account and syncs it before returning, so
// the caller sees the outcome.
func (s *Service) SyncAccountNow(ctx context.Context, ownerID, accountID, providerName string) (provider.SyncStats, error) {
	acct, storage, err := s.syncTarget(ctx, ownerID, accountID, providerName)
	if err != nil {
		return provider.SyncStats{}, err
	}
	return s.syncNow(ctx, acct, storage)
}

func (s *Service) syncNow(ctx context.Context, acct *store.LinkedAccount, storage store.StorageType) (provider.SyncStats, error) {
	s.syncer.RefreshAccount(ctx, acct)
	return s.syncer.Sync(ctx, acct.ID, acct.OwnerID, storage)
}

// syncTarget resolves the caller's account and checks that it belongs to
// a configured provider.
func (s *Service) syncTarget(ctx context.Context, ownerID, accountID, providerName string) (*store.LinkedAccount, store.StorageType, error) {
	storage, err := store.ParseStorageType(providerName)
	if err != nil || !storage.IsCloud() {
		return nil, "", uferrors.New(uferrors.ErrCodeUnsupportedProvider, "unsupported provider", err).
			WithDetail("provider", providerName).
			WithSuggestion("use google_drive or dropbox")
	}

	acct, err := s.ownedAccount(ctx, ownerID, accountID)
	if err != nil {
		return nil, "", err
	}
	if acct.Provider != storage {
		return nil, "", uferrors.ValidationError("account is linked to a different provider", nil).
			WithDetail("account_id", accountID).
			WithDetail("provider", acct.Provider.String())
	}
	if s.syncer == nil {
		return nil, "", uferrors.New(uferrors.ErrCodeUnsupportedProvider, "cloud sync is not configured", nil)
	}
	if _, err := s.syncer.Provider(storage); err != nil {
		return nil, "", err
	}
	return acct, storage, nil
}

// Open reveals a local entry in the file manager or returns the web URL of
// a cloud entry.
func (s *Service) Open(ctx context.Context, ownerID, path string) (OpenAction, error) {
	entry, err := s.ownedEntry(ctx, ownerID, path)
	if err != nil {
		return OpenAction{}, err
	}

	if entry.StorageType == store.StorageLocal {
		if _, err := os.Stat(entry.Path); err != nil {
			return OpenAction{}, uferrors.New(uferrors.ErrCodeFileNotFound, "file no longer exists on disk", err).
				WithDetail("path", entry.Path)
		}
		if err := s.launcher.Reveal(ctx, entry.Path, entry.IsFolder); err != nil {
			return OpenAction{}, uferrors.InternalError("failed to reveal entry", err)
		}
		return OpenAction{Action: ActionRevealed, Path: entry.Path}, nil
	}

	p, err := s.cloudProvider(entry.StorageType)
	if err != nil {
		return OpenAction{}, err
	}
	return OpenAction{Action: ActionURL, Path: entry.Path, URL: p.WebURL(entry)}, nil
}

// Download streams an entry's content. The caller closes the reader.
func (s *Service) Download(ctx context.Context, ownerID, path string) (io.ReadCloser, DownloadInfo, error) {
	entry, err := s.ownedEntry(ctx, ownerID, path)
	if err != nil {
		return nil, DownloadInfo{}, err
	}
	info := DownloadInfo{Name: entry.Name, MimeType: entry.MimeType, StorageType: entry.StorageType, Size: -1}

	if entry.IsFolder {
		return nil, info, uferrors.ValidationError("folders cannot be downloaded", nil).
			WithDetail("path", entry.Path)
	}

	if entry.StorageType == store.StorageLocal {
		f, err := os.Open(entry.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, info, uferrors.New(uferrors.ErrCodeFileNotFound, "file no longer exists on disk", err).
					WithDetail("path", entry.Path)
			}
			return nil, info, uferrors.New(uferrors.ErrCodeFilePermission, "cannot read file", err).
				WithDetail("path", entry.Path)
		}
		if st, err := f.Stat(); err == nil {
			info.Size = st.Size()
		}
		return f, info, nil
	}

	p, err := s.cloudProvider(entry.StorageType)
	if err != nil {
		return nil, info, err
	}
	tok, err := s.tokens.GetToken(ctx, entry.AccountID, entry.StorageType)
	if err != nil {
		return nil, info, err
	}
	rc, err := p.Download(ctx, tok.AccessToken, entry)
	if err != nil {
		return nil, info, err
	}
	return rc, info, nil
}

// Account is a linked account without its tokens.
type Account struct {
	ID         string            `json:"id"`
	Provider   store.StorageType `json:"provider"`
	Email      string            `json:"email"`
	LastSynced time.Time         `json:"last_synced,omitzero"`
}

// ListAccounts lists the owner's linked accounts.
func (s *Service) ListAccounts(ctx context.Context, ownerID string) ([]Account, error) {
	accts, err := s.store.ListOwnerAccounts(ctx, ownerID)
	if err != nil {
		return nil, uferrors.InternalError("failed to list accounts", err)
	}
	out := make([]Account, len(accts))
	for i, a := range accts {
		out[i] = Account{ID: a.ID, Provider: a.Provider, Email: a.Email, LastSynced: a.LastSynced}
	}
	return out, nil
}

// LinkAccount stores provider credentials obtained elsewhere. Linking the
// same (provider, email) again refreshes its tokens.
func (s *Service) LinkAccount(ctx context.Context, ownerID, providerName, email, accessToken, refreshToken string) (Account, error) {
	storage, err := store.ParseStorageType(providerName)
	if err != nil || !storage.IsCloud() {
		return Account{}, uferrors.New(uferrors.ErrCodeUnsupportedProvider, "unsupported provider", err).
			WithDetail("provider", providerName)
	}
	email = strings.TrimSpace(email)
	if ownerID == "" || email == "" || accessToken == "" {
		return Account{}, uferrors.ValidationError("owner, email and access token are required", nil)
	}

	acct := &store.LinkedAccount{
		OwnerID:      ownerID,
		Provider:     storage,
		Email:        email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if err := s.store.SaveAccount(ctx, acct); err != nil {
		return Account{}, uferrors.InternalError("failed to save account", err)
	}
	slog.Info("account_linked",
		slog.String("owner", ownerID),
		slog.String("account_id", acct.ID),
		slog.String("provider", storage.String()))
	return Account{ID: acct.ID, Provider: acct.Provider, Email: acct.Email, LastSynced: acct.LastSynced}, nil
}

// DeleteAccount unlinks an account. Its indexed entries stay.
func (s *Service) DeleteAccount(ctx context.Context, ownerID, accountID string) error {
	if _, err := s.ownedAccount(ctx, ownerID, accountID); err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, accountID); err != nil {
		return uferrors.InternalError("failed to delete account", err)
	}
	slog.Info("account_unlinked", slog.String("owner", ownerID), slog.String("account_id", accountID))
	return nil
}

// Wait blocks until background work started by the service has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background work and waits for it.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) goBackground(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// ownedEntry returns the owner's entry at path. A path indexed only by
// other owners is an authorization error; an unknown path is not found.
func (s *Service) ownedEntry(ctx context.Context, ownerID, path string) (*store.Entry, error) {
	if ownerID == "" || path == "" {
		return nil, uferrors.ValidationError("owner and path are required", nil)
	}

	entry, err := s.store.GetEntry(ctx, ownerID, path)
	if err != nil {
		return nil, uferrors.InternalError("failed to look up entry", err)
	}
	if entry != nil {
		return entry, nil
	}

	owned, err := s.store.PathOwned(ctx, path)
	if err != nil {
		return nil, uferrors.InternalError("failed to look up entry", err)
	}
	if owned {
		slog.Warn("access_denied", slog.String("owner", ownerID), slog.String("path", path))
		return nil, uferrors.AuthorizationError("entry belongs to another user")
	}
	return nil, uferrors.NotFoundError("entry not found").WithDetail("path", path)
}

func (s *Service) ownedAccount(ctx context.Context, ownerID, accountID string) (*store.LinkedAccount, error) {
	if ownerID == "" || accountID == "" {
		return nil, uferrors.ValidationError("owner and account id are required", nil)
	}
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, uferrors.InternalError("failed to look up account", err)
	}
	if acct == nil {
		return nil, uferrors.AccountNotFoundError(accountID)
	}
	if acct.OwnerID != ownerID {
		slog.Warn("access_denied", slog.String("owner", ownerID), slog.String("account_id", accountID))
		return nil, uferrors.AuthorizationError("account belongs to another user")
	}
	return acct, nil
}

func (s *Service) cloudProvider(storage store.StorageType) (provider.Provider, error) {
	if s.syncer == nil {
		return nil, uferrors.New(uferrors.ErrCodeUnsupportedProvider, "cloud providers are not configured", nil).
			WithDetail("provider", storage.String())
	}
	p, err := s.syncer.Provider(storage)
	if err != nil {
		return nil, fmt.Errorf("cannot reach %s: %w", storage, err)
	}
	return p, nil
}
