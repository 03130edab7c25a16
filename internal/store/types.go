// Package store provides the persistence layer: the relational Index Store
// (SQLite) holding indexed entries and linked accounts, and the full-text
// Search Backend (Bleve) used for prefix and fuzzy name search.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StorageType identifies where an entry lives.
type StorageType string

const (
	StorageLocal       StorageType = "local"
	StorageGoogleDrive StorageType = "google_drive"
	StorageDropbox     StorageType = "dropbox"
)

// CloudStorageTypes lists the provider-backed storage types.
var CloudStorageTypes = []StorageType{StorageGoogleDrive, StorageDropbox}

// IsCloud reports whether s is a provider-backed storage type.
func (s StorageType) IsCloud() bool {
	return s == StorageGoogleDrive || s == StorageDropbox
}

// Valid reports whether s is a known storage type.
func (s StorageType) Valid() bool {
	return s == StorageLocal || s.IsCloud()
}

func (s StorageType) String() string { return string(s) }

// ParseStorageType accepts the canonical names plus the short aliases used
// by the CLI ("drive", "gdrive").
func ParseStorageType(v string) (StorageType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "local":
		return StorageLocal, nil
	case "google_drive", "drive", "gdrive", "google":
		return StorageGoogleDrive, nil
	case "dropbox":
		return StorageDropbox, nil
	}
	return "", fmt.Errorf("unknown storage type %q", v)
}

// Synthetic path schemes for cloud objects.
const (
	DriveScheme   = "drive://"
	DropboxScheme = "dropbox://"
)

// DrivePath returns the synthetic path for a Google Drive file id.
func DrivePath(fileID string) string { return DriveScheme + fileID }

// DropboxPath returns the synthetic path for a Dropbox path.
func DropboxPath(providerPath string) string { return DropboxScheme + providerPath }

// Entry is one indexed file or folder. Empty strings and the zero time
// are stored as NULL.
type Entry struct {
	ID            int64       `json:"-"`
	OwnerID       string      `json:"owner_id"`
	Name          string      `json:"name"`
	Path          string      `json:"path"`
	IsFolder      bool        `json:"is_folder"`
	StorageType   StorageType `json:"storage_type"`
	AccountID     string      `json:"account_id,omitempty"`
	CloudObjectID string      `json:"cloud_object_id,omitempty"`
	MimeType      string      `json:"mime_type,omitempty"`
	LastModified  time.Time   `json:"last_modified,omitzero"`
}

// LinkedAccount is one (owner, provider, email) link with its OAuth tokens.
type LinkedAccount struct {
	ID           string
	OwnerID      string
	Provider     StorageType
	Email        string
	AccessToken  string
	RefreshToken string
	LastSynced   time.Time
	CreatedAt    time.Time
}

// CloudQuery is the relational fallback search for cloud entries.
type CloudQuery struct {
	OwnerID string
	Text    string
	// Types restricts the storage types searched. Empty means all cloud types.
	Types  []StorageType
	Limit  int
	Offset int
}

// IndexStore is the relational store of entries and linked accounts.
// Uniqueness is enforced on (owner_id, path).
type IndexStore interface {
	// ExistingPaths returns the subset of paths already indexed for owner.
	ExistingPaths(ctx context.Context, ownerID string, paths []string) (map[string]struct{}, error)

	// InsertNew inserts entries in one transaction, ignoring rows whose
	// (owner_id, path) already exists. Returns the number of rows inserted.
	InsertNew(ctx context.Context, entries []*Entry) (int, error)

	// Upsert inserts or updates entries in one transaction. On conflict only
	// name, mime_type and last_modified change. A cloud entry replaces rows
	// of the same account and cloud object at other paths. Any error rolls
	// back all rows.
	Upsert(ctx context.Context, entries []*Entry) error

	// MarkSearchIndexed flags the owner's rows at paths as searchable.
	MarkSearchIndexed(ctx context.Context, ownerID string, paths []string) error

	// ListUnindexed pages the owner's rows of one storage type that are not
	// yet in the search index, by ascending id.
	ListUnindexed(ctx context.Context, ownerID string, storage StorageType, afterID int64, limit int) ([]*Entry, error)

	// UpdateLastModified sets the stored modification time of one entry.
	UpdateLastModified(ctx context.Context, ownerID, path string, modTime time.Time) error

	// GetEntry returns the owner's entry at path, or nil if absent.
	GetEntry(ctx context.Context, ownerID, path string) (*Entry, error)

	// PathOwned reports whether any owner has indexed path.
	PathOwned(ctx context.Context, path string) (bool, error)

	// SearchCloud matches a case-insensitive substring of name. Case is
	// folded with Unicode rules, not SQLite's ASCII-only lower().
	SearchCloud(ctx context.Context, q CloudQuery) ([]*Entry, error)

	// DistinctOwners lists owners with at least one entry of the given type.
	DistinctOwners(ctx context.Context, storage StorageType) ([]string, error)

	// CountEntries returns entry counts per storage type for owner.
	CountEntries(ctx context.Context, ownerID string) (map[StorageType]int, error)

	// ListEntries pages entries of one storage type by ascending id.
	ListEntries(ctx context.Context, storage StorageType, afterID int64, limit int) ([]*Entry, error)

	AccountStore
	Close() error
}

// AccountStore persists linked accounts.
type AccountStore interface {
	// SaveAccount inserts the account, or refreshes the tokens of the
	// existing (owner, provider, email) link. The stored ID is written back.
	SaveAccount(ctx context.Context, acct *LinkedAccount) error

	// GetAccount returns the account, or nil if absent.
	GetAccount(ctx context.Context, id string) (*LinkedAccount, error)

	// ListAccounts lists all accounts of one provider across owners.
	ListAccounts(ctx context.Context, provider StorageType) ([]*LinkedAccount, error)

	// ListOwnerAccounts lists one owner's accounts.
	ListOwnerAccounts(ctx context.Context, ownerID string) ([]*LinkedAccount, error)

	// UpdateTokens stores refreshed tokens without touching the sync time.
	// An empty refreshToken keeps the stored one.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error

	// MarkSynced records a completed sync.
	MarkSynced(ctx context.Context, id string, syncedAt time.Time) error

	// DeleteAccount removes the account. Indexed entries are kept.
	DeleteAccount(ctx context.Context, id string) error
}

// BackendQuery is a ranked name search against the Search Backend.
type BackendQuery struct {
	OwnerID string
	Text    string
	// Types restricts storage types. Empty means any.
	Types []StorageType
	// FoldersOnly and FilesOnly narrow by entry kind; both false means any.
	FoldersOnly bool
	FilesOnly   bool
	Limit       int
	Offset      int
}

// SearchBackend is the full-text engine holding local entries.
type SearchBackend interface {
	// Ping is a cheap liveness probe.
	Ping(ctx context.Context) error

	// Index adds or replaces entries as one batch.
	Index(ctx context.Context, entries []*Entry) error

	// Search runs a prefix plus fuzzy name query scoped to one owner.
	Search(ctx context.Context, q BackendQuery) ([]*Entry, error)

	// Count returns the number of indexed documents.
	Count() (uint64, error)

	Close() error
}
