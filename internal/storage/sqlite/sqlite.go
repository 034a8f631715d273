// Package sqlite stores accounts in a single-file SQLite database using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            INTEGER PRIMARY KEY CHECK (id > 3),
	name          TEXT    NOT NULL,
	safe_name     TEXT    NOT NULL UNIQUE,
	password_hash TEXT    NOT NULL,
	country       TEXT    NOT NULL DEFAULT 'xx',
	privileges    INTEGER NOT NULL DEFAULT 1,
	friends       TEXT    NOT NULL DEFAULT '[]',
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS client_details (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id         INTEGER NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
	version            TEXT    NOT NULL,
	utc_offset         INTEGER NOT NULL,
	osu_path_md5       TEXT    NOT NULL,
	adapters           TEXT    NOT NULL,
	adapters_md5       TEXT    NOT NULL,
	uninstall_md5      TEXT    NOT NULL,
	disk_signature_md5 TEXT    NOT NULL,
	display_city       INTEGER NOT NULL DEFAULT 0,
	pm_private         INTEGER NOT NULL DEFAULT 0,
	recorded_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_client_details_account ON client_details (account_id);
`

// sqliteConstraint is the primary result code of every constraint violation.
const sqliteConstraint = 19

// AccountRepository provides account persistence operations.
type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Repository = (*AccountRepository)(nil)

// Open opens or creates the database at path and applies the schema.
//
// Postcondition: Returns a ready repository or a non-nil error.
func Open(ctx context.Context, path string, logger *zap.Logger) (*AccountRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// SQLite serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		logger.Warn("enabling WAL mode", zap.Error(err))
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		logger.Warn("enabling foreign keys", zap.Error(err))
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logger.Info("account database opened", zap.String("path", path))
	return &AccountRepository{db: db, now: time.Now}, nil
}

const selectAccount = `SELECT id, name, password_hash, country, privileges, friends, created_at FROM accounts`

func scanAccount(row *sql.Row) (storage.Account, error) {
	var (
		acct    storage.Account
		priv    int64
		friends string
		created int64
	)
	err := row.Scan(&acct.ID, &acct.Name, &acct.PasswordHash, &acct.Country, &priv, &friends, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrAccountNotFound
		}
		return storage.Account{}, fmt.Errorf("querying account: %w", err)
	}
	if err := json.Unmarshal([]byte(friends), &acct.Friends); err != nil {
		return storage.Account{}, fmt.Errorf("decoding friends of %d: %w", acct.ID, err)
	}
	acct.Privileges = ruleset.Privileges(priv)
	acct.CreatedAt = time.Unix(created, 0).UTC()
	return acct, nil
}

// FetchByName retrieves an account by name, ignoring case.
func (r *AccountRepository) FetchByName(ctx context.Context, name string) (storage.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, selectAccount+` WHERE safe_name = ?`, storage.SafeName(name)))
}

// FetchByID retrieves an account by id.
func (r *AccountRepository) FetchByID(ctx context.Context, id int32) (storage.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
}

// Create inserts a new account with the next id above the bot account.
//
// Postcondition: Returns the created Account, or storage.ErrAccountExists if
// the name is taken.
func (r *AccountRepository) Create(ctx context.Context, name, passwordHash, country string, privileges ruleset.Privileges) (storage.Account, error) {
	if err := storage.ValidateName(name); err != nil {
		return storage.Account{}, err
	}
	created := r.now().Unix()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, name, safe_name, password_hash, country, privileges, created_at)
		 SELECT MAX(COALESCE(MAX(id), ?), ?) + 1, ?, ?, ?, ?, ?, ? FROM accounts WHERE true
		 RETURNING id, name, password_hash, country, privileges, friends, created_at`,
		storage.BotAccountID, storage.BotAccountID, name, storage.SafeName(name), passwordHash, country, int64(privileges), created,
	)
	acct, err := scanAccount(row)
	if err != nil {
		if isConstraintError(err) {
			return storage.Account{}, storage.ErrAccountExists
		}
		return storage.Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return acct, nil
}

// VerifyPassword compares a client password digest against a stored bcrypt hash.
func (r *AccountRepository) VerifyPassword(plain, hash string) bool {
	return storage.CheckPassword(plain, hash)
}

// SetPrivileges replaces the privilege mask of the given account.
func (r *AccountRepository) SetPrivileges(ctx context.Context, id int32, privileges ruleset.Privileges) error {
	return r.exec(ctx, "updating privileges",
		`UPDATE accounts SET privileges = ? WHERE id = ?`, int64(privileges), id)
}

// SetFriends replaces the friends list of the given account.
func (r *AccountRepository) SetFriends(ctx context.Context, id int32, friends []int32) error {
	if friends == nil {
		friends = []int32{}
	}
	encoded, err := json.Marshal(friends)
	if err != nil {
		return fmt.Errorf("encoding friends: %w", err)
	}
	return r.exec(ctx, "updating friends",
		`UPDATE accounts SET friends = ? WHERE id = ?`, string(encoded), id)
}

// RecordClientDetails stores a login fingerprint.
func (r *AccountRepository) RecordClientDetails(ctx context.Context, d storage.ClientDetails) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_details
		 (account_id, version, utc_offset, osu_path_md5, adapters, adapters_md5,
		  uninstall_md5, disk_signature_md5, display_city, pm_private, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.AccountID, d.Version, int64(d.UTCOffset), d.OsuPathMD5, d.Adapters, d.AdaptersMD5,
		d.UninstallMD5, d.DiskSignatureMD5, d.DisplayCity, d.PMPrivate, r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting client details: %w", err)
	}
	return nil
}

// Close closes the database.
func (r *AccountRepository) Close() error {
	return r.db.Close()
}

func (r *AccountRepository) exec(ctx context.Context, what, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

func isConstraintError(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()&0xff == sqliteConstraint
	}
	return false
}
