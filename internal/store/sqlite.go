package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// maxInParams bounds the placeholders in one IN (...) clause.
const maxInParams = 500

// SQLiteStore implements IndexStore on SQLite in WAL mode.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ IndexStore = (*SQLiteStore)(nil)

const entryColumns = `id, owner_id, name, path, is_folder, storage_type,
	account_id, cloud_object_id, mime_type, last_modified`

const insertColumns = `owner_id, name, path, is_folder, storage_type,
	account_id, cloud_object_id, mime_type, last_modified, indexed_at, name_folded`

const accountColumns = `id, owner_id, provider, email, access_token,
	refresh_token, last_synced, created_at`

// validateSQLiteIntegrity checks an existing database before opening it.
// Returns nil if valid or absent.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens or creates the index database at path.
// An empty path creates an in-memory store for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		// Unlike the search index, this database holds linked accounts that
		// cannot be rebuilt by a crawl, so corruption is reported, not cleared.
		if err := validateSQLiteIntegrity(path); err != nil {
			slog.Error("index_store_corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("index store at %s is corrupted: %w", path, err)
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention. Every caller still goes
	// through the pool, which hands the connection back when the statement
	// or transaction ends.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite may ignore DSN params, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -32768",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS indexed_entries (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id        TEXT    NOT NULL,
		name            TEXT    NOT NULL,
		path            TEXT    NOT NULL,
		is_folder       INTEGER NOT NULL DEFAULT 0,
		storage_type    TEXT    NOT NULL,
		account_id      TEXT,
		cloud_object_id TEXT,
		mime_type       TEXT,
		last_modified   INTEGER,
		indexed_at      INTEGER NOT NULL,
		name_folded     TEXT    NOT NULL DEFAULT '',
		search_indexed  INTEGER NOT NULL DEFAULT 0,
		UNIQUE (owner_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_owner_type
		ON indexed_entries (owner_id, storage_type);
	CREATE INDEX IF NOT EXISTS idx_entries_path
		ON indexed_entries (path);
	CREATE INDEX IF NOT EXISTS idx_entries_cloud_object
		ON indexed_entries (owner_id, account_id, cloud_object_id);

	CREATE TABLE IF NOT EXISTS linked_accounts (
		id            TEXT    PRIMARY KEY,
		owner_id      TEXT    NOT NULL,
		provider      TEXT    NOT NULL,
		email         TEXT    NOT NULL,
		access_token  TEXT    NOT NULL,
		refresh_token TEXT,
		last_synced   INTEGER,
		created_at    INTEGER NOT NULL,
		UNIQUE (owner_id, provider, email)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_provider
		ON linked_accounts (provider);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.migrate()
}

// SchemaVersion is the current indexed_entries layout. Version 2 added
// name_folded and search_indexed.
const SchemaVersion = 2

// migrate brings a version 1 database up to SchemaVersion. Rows indexed
// before version 2 are left with search_indexed = 0, so the next crawl
// re-indexes them.
func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= SchemaVersion {
		return nil
	}

	cols, err := s.entryColumnSet()
	if err != nil {
		return err
	}
	for _, add := range []struct{ name, ddl string }{
		{"name_folded", `ALTER TABLE indexed_entries ADD COLUMN name_folded TEXT NOT NULL DEFAULT ''`},
		{"search_indexed", `ALTER TABLE indexed_entries ADD COLUMN search_indexed INTEGER NOT NULL DEFAULT 0`},
	} {
		if _, ok := cols[add.name]; ok {
			continue
		}
		if _, err := s.db.Exec(add.ddl); err != nil {
			return fmt.Errorf("failed to add column %s: %w", add.name, err)
		}
	}

	if err := s.backfillFoldedNames(); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	slog.Info("index_store_migrated",
		slog.Int("from_version", version),
		slog.Int("to_version", SchemaVersion))
	return nil
}

func (s *SQLiteStore) entryColumnSet() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('indexed_entries')`)
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// backfillFoldedNames fills name_folded for rows written before the column
// existed. Folding happens in Go because SQLite's lower() is ASCII-only.
func (s *SQLiteStore) backfillFoldedNames() error {
	rows, err := s.db.Query(`SELECT id, name FROM indexed_entries WHERE name_folded = '' AND name <> ''`)
	if err != nil {
		return fmt.Errorf("failed to scan names for backfill: %w", err)
	}
	folded := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return err
		}
		folded[id] = foldName(name)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for id, name := range folded {
		if _, err := tx.Exec(`UPDATE indexed_entries SET name_folded = ? WHERE id = ?`, name, id); err != nil {
			return fmt.Errorf("failed to backfill name %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// foldName is the case-folded form stored in name_folded and used for
// cloud name matching.
func foldName(name string) string {
	return strings.ToLower(name)
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return fmt.Errorf("index store is closed")
	}
	return nil
}

// ExistingPaths returns the subset of paths already indexed for owner.
func (s *SQLiteStore) ExistingPaths(ctx context.Context, ownerID string, paths []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	found := make(map[string]struct{})
	for start := 0; start < len(paths); start += maxInParams {
		end := min(start+maxInParams, len(paths))
		chunk := paths[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, ownerID)
		for _, p := range chunk {
			args = append(args, p)
		}

		query := `SELECT path FROM indexed_entries WHERE owner_id = ? AND path IN (` +
			placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing paths: %w", err)
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan path: %w", err)
			}
			found[p] = struct{}{}
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate paths: %w", err)
		}
	}

	return found, nil
}

// InsertNew inserts entries in one transaction, skipping existing rows.
func (s *SQLiteStore) InsertNew(ctx context.Context, entries []*Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO indexed_entries (`+insertColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, path) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UnixNano()
		for _, e := range entries {
			res, err := stmt.ExecContext(ctx, entryArgs(e, now)...)
			if err != nil {
				return fmt.Errorf("failed to insert %s: %w", e.Path, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Upsert inserts or updates entries in one transaction. A cloud entry
// replaces any row of the same account and cloud object at another path,
// so a renamed or moved object keeps a single row.
func (s *SQLiteStore) Upsert(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		moved, err := tx.PrepareContext(ctx, `
			DELETE FROM indexed_entries
			WHERE owner_id = ? AND account_id = ? AND cloud_object_id = ? AND path <> ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare move statement: %w", err)
		}
		defer moved.Close()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO indexed_entries (`+insertColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, path) DO UPDATE SET
				name          = excluded.name,
				name_folded   = excluded.name_folded,
				mime_type     = excluded.mime_type,
				last_modified = excluded.last_modified`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UnixNano()
		for _, e := range entries {
			if e.CloudObjectID != "" && e.AccountID != "" {
				if _, err := moved.ExecContext(ctx, e.OwnerID, e.AccountID, e.CloudObjectID, e.Path); err != nil {
					return fmt.Errorf("failed to replace moved %s: %w", e.Path, err)
				}
			}
			if _, err := stmt.ExecContext(ctx, entryArgs(e, now)...); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", e.Path, err)
			}
		}
		return nil
	})
}

// MarkSearchIndexed flags the owner's rows at paths as present in the
// search index.
func (s *SQLiteStore) MarkSearchIndexed(ctx context.Context, ownerID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(paths); start += maxInParams {
			end := min(start+maxInParams, len(paths))
			chunk := paths[start:end]

			args := make([]any, 0, len(chunk)+1)
			args = append(args, ownerID)
			for _, p := range chunk {
				args = append(args, p)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE indexed_entries SET search_indexed = 1
				 WHERE owner_id = ? AND path IN (`+placeholders(len(chunk))+`)`,
				args...); err != nil {
				return fmt.Errorf("failed to mark entries indexed: %w", err)
			}
		}
		return nil
	})
}

// ListUnindexed pages through the owner's rows of one storage type that are
// not yet in the search index, in id order.
func (s *SQLiteStore) ListUnindexed(ctx context.Context, ownerID string, storage StorageType, afterID int64, limit int) ([]*Entry, error) {
	return s.queryEntries(ctx, "failed to list unindexed entries",
		`SELECT `+entryColumns+` FROM indexed_entries
		 WHERE owner_id = ? AND storage_type = ? AND search_indexed = 0 AND id > ?
		 ORDER BY id LIMIT ?`,
		ownerID, string(storage), afterID, limit)
}

// UpdateLastModified sets the stored modification time of the owner's
// entry at path.
func (s *SQLiteStore) UpdateLastModified(ctx context.Context, ownerID, path string, modTime time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE indexed_entries SET last_modified = ? WHERE owner_id = ? AND path = ?`,
			nullTime(modTime), ownerID, path); err != nil {
			return fmt.Errorf("failed to update last_modified of %s: %w", path, err)
		}
		return nil
	})
}

// withTx runs fn in a write transaction. The transaction is rolled back
// unless fn returns nil and the commit succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEntry returns the owner's entry at path, or nil if absent.
func (s *SQLiteStore) GetEntry(ctx context.Context, ownerID, path string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM indexed_entries WHERE owner_id = ? AND path = ?`,
		ownerID, path)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// PathOwned reports whether any owner has indexed path.
func (s *SQLiteStore) PathOwned(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM indexed_entries WHERE path = ?`, path).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	return n > 0, nil
}

// SearchCloud matches a case-insensitive substring of the entry name among
// the owner's cloud entries, ordered by name for stable pagination.
func (s *SQLiteStore) SearchCloud(ctx context.Context, q CloudQuery) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	types := q.Types
	if len(types) == 0 {
		types = CloudStorageTypes
	}

	args := []any{q.OwnerID}
	for _, t := range types {
		args = append(args, string(t))
	}
	args = append(args, "%"+escapeLike(foldName(q.Text))+"%", q.Limit, q.Offset)

	query := `SELECT ` + entryColumns + ` FROM indexed_entries
		WHERE owner_id = ?
		  AND storage_type IN (` + placeholders(len(types)) + `)
		  AND name_folded LIKE ? ESCAPE '\'
		ORDER BY name, id
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search cloud entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DistinctOwners lists owners with at least one entry of the given type.
func (s *SQLiteStore) DistinctOwners(ctx context.Context, storage StorageType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id FROM indexed_entries WHERE storage_type = ? ORDER BY owner_id`,
		string(storage))
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// CountEntries returns entry counts per storage type for owner.
func (s *SQLiteStore) CountEntries(ctx context.Context, ownerID string) (map[StorageType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT storage_type, COUNT(*) FROM indexed_entries WHERE owner_id = ? GROUP BY storage_type`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[StorageType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[StorageType(t)] = n
	}
	return counts, rows.Err()
}

// ListEntries pages through entries of one storage type in id order,
// returning at most limit rows with id greater than afterID.
func (s *SQLiteStore) ListEntries(ctx context.Context, storage StorageType, afterID int64, limit int) ([]*Entry, error) {
	return s.queryEntries(ctx, "failed to list entries",
		`SELECT `+entryColumns+` FROM indexed_entries
		 WHERE storage_type = ? AND id > ? ORDER BY id LIMIT ?`,
		string(storage), afterID, limit)
}

func (s *SQLiteStore) queryEntries(ctx context.Context, failure, query string, args ...any) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", failure, err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveAccount inserts the account or refreshes the tokens of an existing
// (owner, provider, email) link, writing the stored ID back into acct.
func (s *SQLiteStore) SaveAccount(ctx context.Context, acct *LinkedAccount) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO linked_accounts (`+accountColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, provider, email) DO UPDATE SET
				access_token  = excluded.access_token,
				refresh_token = COALESCE(excluded.refresh_token, linked_accounts.refresh_token)`,
			acct.ID, acct.OwnerID, string(acct.Provider), acct.Email, acct.AccessToken,
			nullString(acct.RefreshToken), nullTime(acct.LastSynced), acct.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}

		return tx.QueryRowContext(ctx,
			`SELECT id FROM linked_accounts WHERE owner_id = ? AND provider = ? AND email = ?`,
			acct.OwnerID, string(acct.Provider), acct.Email).Scan(&acct.ID)
	})
}

// GetAccount returns the account, or nil if absent.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM linked_accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// ListAccounts lists all accounts of one provider across owners.
func (s *SQLiteStore) ListAccounts(ctx context.Context, provider StorageType) ([]*LinkedAccount, error) {
	return s.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM linked_accounts WHERE provider = ? ORDER BY owner_id, email`,
		string(provider))
}

// ListOwnerAccounts lists one owner's accounts.
func (s *SQLiteStore) ListOwnerAccounts(ctx context.Context, ownerID string) ([]*LinkedAccount, error) {
	return s.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM linked_accounts WHERE owner_id = ? ORDER BY provider, email`,
		ownerID)
}

func (s *SQLiteStore) listAccounts(ctx context.Context, query string, arg string) ([]*LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*LinkedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateTokens stores refreshed tokens. An empty refreshToken keeps the
// stored one. The sync time is left alone.
func (s *SQLiteStore) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	return s.execAccount(ctx,
		`UPDATE linked_accounts
		 SET access_token = ?, refresh_token = COALESCE(?, refresh_token)
		 WHERE id = ?`,
		accessToken, nullString(refreshToken), id)
}

// MarkSynced records a completed sync.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id string, syncedAt time.Time) error {
	return s.execAccount(ctx,
		`UPDATE linked_accounts SET last_synced = ? WHERE id = ?`,
		syncedAt.UnixNano(), id)
}

// DeleteAccount removes the account. Entries that reference it stay.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	return s.execAccount(ctx, `DELETE FROM linked_accounts WHERE id = ?`, id)
}

func (s *SQLiteStore) execAccount(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var (
		e                         Entry
		storage                   string
		isFolder                  int
		accountID, objectID, mime sql.NullString
		lastModified              sql.NullInt64
	)
	if err := r.Scan(&e.ID, &e.OwnerID, &e.Name, &e.Path, &isFolder, &storage,
		&accountID, &objectID, &mime, &lastModified); err != nil {
		return nil, err
	}
	e.IsFolder = isFolder != 0
	e.StorageType = StorageType(storage)
	e.AccountID = accountID.String
	e.CloudObjectID = objectID.String
	e.MimeType = mime.String
	if lastModified.Valid {
		e.LastModified = time.Unix(0, lastModified.Int64).UTC()
	}
	return &e, nil
}

func scanAccount(r rowScanner) (*LinkedAccount, error) {
	var (
		a          LinkedAccount
		provider   string
		refresh    sql.NullString
		lastSynced sql.NullInt64
		createdAt  int64
	)
	if err := r.Scan(&a.ID, &a.OwnerID, &provider, &a.Email, &a.AccessToken,
		&refresh, &lastSynced, &createdAt); err != nil {
		return nil, err
	}
	a.Provider = StorageType(provider)
	a.RefreshToken = refresh.String
	if lastSynced.Valid {
		a.LastSynced = time.Unix(0, lastSynced.Int64).UTC()
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	return &a, nil
}

func entryArgs(e *Entry, indexedAt int64) []any {
	folder := 0
	if e.IsFolder {
		folder = 1
	}
	return []any{
		e.OwnerID, e.Name, e.Path, folder, string(e.StorageType),
		nullString(e.AccountID), nullString(e.CloudObjectID), nullString(e.MimeType),
		nullTime(e.LastModified), indexedAt, foldName(e.Name),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: t.UnixNano(), Valid: !t.IsZero()}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
