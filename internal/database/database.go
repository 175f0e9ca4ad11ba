package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"multidrive/internal/crypto"
	"multidrive/internal/model"
)

const DBFileName = "metadata.db"

// DB is the persistence layer: account records plus a file-metadata cache.
// Refresh tokens are encrypted at rest with the master key; the cache is a
// fallback display source only, never authoritative.
type DB struct {
	conn *sql.DB
	key  []byte
}

// Open opens (and if needed initializes) the database at path. key is the
// master key used to encrypt refresh tokens.
func Open(path string, key []byte) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, key: key}
	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		refresh_token BLOB NOT NULL,
		token_expiry INTEGER NOT NULL DEFAULT 0,
		quota_total INTEGER NOT NULL DEFAULT 0,
		quota_used INTEGER NOT NULL DEFAULT 0,
		role TEXT NOT NULL,
		shared_folder_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		added_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_role ON accounts(role);

	CREATE TABLE IF NOT EXISTS file_cache (
		account_id TEXT NOT NULL,
		file_id TEXT NOT NULL,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		parent_id TEXT NOT NULL DEFAULT '',
		modified_time INTEGER NOT NULL DEFAULT 0,
		thumbnail_link TEXT NOT NULL DEFAULT '',
		web_view_link TEXT NOT NULL DEFAULT '',
		cached_at INTEGER NOT NULL,
		PRIMARY KEY (account_id, file_id),
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_file_cache_parent ON file_cache(account_id, parent_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// UpsertAccount inserts or replaces an account record.
func (db *DB) UpsertAccount(acct *model.Account) error {
	tokenEnc, err := crypto.Encrypt(db.key, []byte(acct.RefreshToken))
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO accounts (
		id, email, display_name, avatar_url, refresh_token, token_expiry,
		quota_total, quota_used, role, shared_folder_id, status, added_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.conn.Exec(query,
		acct.ID, acct.Email, acct.DisplayName, acct.AvatarURL, tokenEnc, acct.TokenExpiry.Unix(),
		acct.QuotaTotal, acct.QuotaUsed, string(acct.Role), acct.SharedFolderID, string(acct.Status), acct.AddedAt.Unix(),
	)
	return err
}

const accountColumns = `id, email, display_name, avatar_url, refresh_token, token_expiry,
	quota_total, quota_used, role, shared_folder_id, status, added_at`

func (db *DB) scanAccount(row interface{ Scan(...interface{}) error }) (*model.Account, error) {
	acct := &model.Account{}
	var tokenEnc []byte
	var role, status string
	var expiry, addedAt int64

	err := row.Scan(
		&acct.ID, &acct.Email, &acct.DisplayName, &acct.AvatarURL, &tokenEnc, &expiry,
		&acct.QuotaTotal, &acct.QuotaUsed, &role, &acct.SharedFolderID, &status, &addedAt,
	)
	if err != nil {
		return nil, err
	}

	token, err := crypto.Decrypt(db.key, tokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token for %s: %w", acct.Email, err)
	}

	acct.RefreshToken = string(token)
	acct.Role = model.Role(role)
	acct.Status = model.Status(status)
	acct.TokenExpiry = time.Unix(expiry, 0)
	acct.AddedAt = time.Unix(addedAt, 0)
	return acct, nil
}

// GetAccount returns the account with the given id.
func (db *DB) GetAccount(id string) (*model.Account, error) {
	row := db.conn.QueryRow("SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	acct, err := db.scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %s not found", id)
	}
	return acct, err
}

// ListAccounts returns all accounts ordered by when they were added.
func (db *DB) ListAccounts() ([]*model.Account, error) {
	rows, err := db.conn.Query("SELECT " + accountColumns + " FROM accounts ORDER BY added_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		acct, err := db.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// ListAccountsByRole returns all accounts with the given role.
func (db *DB) ListAccountsByRole(role model.Role) ([]*model.Account, error) {
	rows, err := db.conn.Query("SELECT "+accountColumns+" FROM accounts WHERE role = ? ORDER BY added_at ASC", string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		acct, err := db.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// GetPrimaryAccount returns the primary account, or nil if none is connected.
func (db *DB) GetPrimaryAccount() (*model.Account, error) {
	accounts, err := db.ListAccountsByRole(model.RolePrimary)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	if len(accounts) > 1 {
		return nil, fmt.Errorf("invariant violated: %d primary accounts configured", len(accounts))
	}
	return accounts[0], nil
}

// UpdateAccountQuota stores freshly fetched quota numbers.
func (db *DB) UpdateAccountQuota(id string, total, used int64) error {
	_, err := db.conn.Exec("UPDATE accounts SET quota_total = ?, quota_used = ? WHERE id = ?", total, used, id)
	return err
}

// UpdateAccountStatus flags an account, e.g. expired when a refresh fails.
func (db *DB) UpdateAccountStatus(id string, status model.Status) error {
	_, err := db.conn.Exec("UPDATE accounts SET status = ? WHERE id = ?", string(status), id)
	return err
}

// SetSharedFolder records a backup account's shared folder id.
func (db *DB) SetSharedFolder(id, folderID string) error {
	_, err := db.conn.Exec("UPDATE accounts SET shared_folder_id = ? WHERE id = ?", folderID, id)
	return err
}

// DeleteAccount removes an account and its cached file metadata.
func (db *DB) DeleteAccount(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM file_cache WHERE account_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM accounts WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// CacheNodes replaces the cached listing of parentID for an account.
func (db *DB) CacheNodes(accountID, parentID string, nodes []*model.Node) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM file_cache WHERE account_id = ? AND parent_id = ?", accountID, parentID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO file_cache (
		account_id, file_id, name, mime_type, size, parent_id,
		modified_time, thumbnail_link, web_view_link, cached_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, n := range nodes {
		_, err := stmt.Exec(accountID, n.ID, n.Name, n.MimeType, n.Size, parentID,
			n.ModifiedTime.Unix(), n.ThumbnailLink, n.WebViewLink, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CachedChildren returns the cached listing of parentID for an account.
func (db *DB) CachedChildren(accountID, parentID string) ([]*model.Node, error) {
	rows, err := db.conn.Query(`
	SELECT file_id, name, mime_type, size, parent_id, modified_time, thumbnail_link, web_view_link
	FROM file_cache
	WHERE account_id = ? AND parent_id = ?
	ORDER BY name ASC
	`, accountID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		n := &model.Node{}
		var modTime int64
		err := rows.Scan(&n.ID, &n.Name, &n.MimeType, &n.Size, &n.ParentID, &modTime, &n.ThumbnailLink, &n.WebViewLink)
		if err != nil {
			return nil, err
		}
		n.ModifiedTime = time.Unix(modTime, 0)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// RemoveCachedNode drops a single node from the cache, e.g. after a delete
// or a completed move.
func (db *DB) RemoveCachedNode(accountID, fileID string) error {
	_, err := db.conn.Exec("DELETE FROM file_cache WHERE account_id = ? AND file_id = ?", accountID, fileID)
	return err
}
