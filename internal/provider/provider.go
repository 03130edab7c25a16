// Package provider adapts cloud storage services to the index. Each
// Provider lists a linked account's objects and streams their contents;
// the Syncer turns a listing into an atomic upsert of index entries.
package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
	"github.com/Aman-CERP/unifind/internal/store"
)

// RemoteObject is one file or folder reported by a provider.
type RemoteObject struct {
	// ID is the provider's object id.
	ID string
	Name string
	// Path is the synthetic index path (drive://, dropbox://).
	Path     string
	IsFolder bool
	MimeType string
	// Modified is normalized to UTC. Zero when the provider omits it.
	Modified time.Time
}

// Provider lists and fetches objects of one cloud service.
type Provider interface {
	// Name is the storage type this provider fills.
	Name() store.StorageType

	// List returns every object visible to the token, across all pages.
	List(ctx context.Context, accessToken string) ([]RemoteObject, error)

	// Download streams the object's content. The caller closes the reader.
	Download(ctx context.Context, accessToken string, entry *store.Entry) (io.ReadCloser, error)

	// WebURL is the provider's browser location for the entry.
	WebURL(entry *store.Entry) string
}

// Token is an OAuth credential pair of one linked account.
type Token struct {
	AccessToken  string
	RefreshToken string
}

// TokenStore resolves the credentials of a linked account.
type TokenStore interface {
	GetToken(ctx context.Context, accountID string, provider store.StorageType) (Token, error)
}

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// AccountTokens implements TokenStore on the account table.
type AccountTokens struct {
	Accounts store.AccountStore
}

// GetToken returns the stored tokens, or an AccountNotFound error when no
// account of that provider has the id.
func (t AccountTokens) GetToken(ctx context.Context, accountID string, provider store.StorageType) (Token, error) {
	acct, err := t.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return Token{}, err
	}
	if acct == nil || acct.Provider != provider {
		return Token{}, uferrors.AccountNotFoundError(accountID)
	}
	return Token{AccessToken: acct.AccessToken, RefreshToken: acct.RefreshToken}, nil
}

// toEntries maps a listing onto index entries of one owner and account.
func toEntries(objs []RemoteObject, ownerID, accountID string, storage store.StorageType) []*store.Entry {
	entries := make([]*store.Entry, 0, len(objs))
	for _, o := range objs {
		entries = append(entries, &store.Entry{
			OwnerID:       ownerID,
			Name:          o.Name,
			Path:          o.Path,
			IsFolder:      o.IsFolder,
			StorageType:   storage,
			AccountID:     accountID,
			CloudObjectID: o.ID,
			MimeType:      o.MimeType,
			LastModified:  o.Modified,
		})
	}
	return entries
}

// classifyHTTP maps an HTTP status from a provider API onto the coded
// error taxonomy so retry and the circuit breaker can act on it.
func classifyHTTP(provider store.StorageType, status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return uferrors.New(uferrors.ErrCodeTokenInvalid, "provider rejected credentials", err).
			WithDetail("provider", provider.String())
	case status == 404:
		return uferrors.NotFoundError("object not found at provider").
			WithDetail("provider", provider.String())
	case status == 429:
		return uferrors.New(uferrors.ErrCodeProviderRateLimit, "provider rate limit", err).
			WithDetail("provider", provider.String())
	case status >= 500:
		return uferrors.NetworkError("provider unavailable", err).
			WithDetail("provider", provider.String())
	}
	return classifyTransport(provider, err)
}

// classifyTransport marks network-level failures retryable.
func classifyTransport(provider store.StorageType, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return uferrors.NetworkError("provider request failed", err).
			WithDetail("provider", provider.String())
	}
	if _, ok := uferrors.As(err); ok {
		return err
	}
	return uferrors.SyncFailure("provider request failed", err).
		WithDetail("provider", provider.String())
}
