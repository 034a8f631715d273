package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/storage"
)

// AccountRepository provides account persistence operations.
type AccountRepository struct {
	pool *Pool
	db   *pgxpool.Pool
}

var _ storage.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates an AccountRepository backed by the given pool.
// Closing the repository closes the pool.
//
// Precondition: pool must be a valid, open connection pool.
func NewAccountRepository(pool *Pool) *AccountRepository {
	return &AccountRepository{pool: pool, db: pool.DB()}
}

const selectAccount = `SELECT id, name, password_hash, country, privileges, friends, created_at FROM accounts`

func scanAccount(row pgx.Row) (storage.Account, error) {
	var (
		acct storage.Account
		priv int64
	)
	err := row.Scan(&acct.ID, &acct.Name, &acct.PasswordHash, &acct.Country, &priv, &acct.Friends, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Account{}, storage.ErrAccountNotFound
		}
		return storage.Account{}, fmt.Errorf("querying account: %w", err)
	}
	acct.Privileges = ruleset.Privileges(priv)
	return acct, nil
}

// FetchByName retrieves an account by name, ignoring case.
//
// Postcondition: Returns the Account or storage.ErrAccountNotFound.
func (r *AccountRepository) FetchByName(ctx context.Context, name string) (storage.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE safe_name = $1`, storage.SafeName(name)))
}

// FetchByID retrieves an account by id.
//
// Postcondition: Returns the Account or storage.ErrAccountNotFound.
func (r *AccountRepository) FetchByID(ctx context.Context, id int32) (storage.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
}

// Create inserts a new account with the next id above the bot account.
//
// Precondition: name must pass storage.ValidateName; passwordHash must be a bcrypt hash.
// Postcondition: Returns the created Account with ID and CreatedAt set,
// or storage.ErrAccountExists if the name is taken.
func (r *AccountRepository) Create(ctx context.Context, name, passwordHash, country string, privileges ruleset.Privileges) (storage.Account, error) {
	if err := storage.ValidateName(name); err != nil {
		return storage.Account{}, err
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO accounts (id, name, safe_name, password_hash, country, privileges)
		 SELECT GREATEST(COALESCE(MAX(id), $1), $1) + 1, $2, $3, $4, $5, $6 FROM accounts
		 RETURNING id, name, password_hash, country, privileges, friends, created_at`,
		storage.BotAccountID, name, storage.SafeName(name), passwordHash, country, int64(privileges),
	)
	acct, err := scanAccount(row)
	if err != nil {
		if isDuplicateKeyError(err) {
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
//
// Postcondition: The mask is updated, or storage.ErrAccountNotFound is returned.
func (r *AccountRepository) SetPrivileges(ctx context.Context, id int32, privileges ruleset.Privileges) error {
	return r.exec(ctx, "updating privileges",
		`UPDATE accounts SET privileges = $1 WHERE id = $2`, int64(privileges), id)
}

// SetFriends replaces the friends list of the given account.
//
// Postcondition: The list is updated, or storage.ErrAccountNotFound is returned.
func (r *AccountRepository) SetFriends(ctx context.Context, id int32, friends []int32) error {
	if friends == nil {
		friends = []int32{}
	}
	return r.exec(ctx, "updating friends",
		`UPDATE accounts SET friends = $1 WHERE id = $2`, friends, id)
}

// RecordClientDetails stores a login fingerprint.
func (r *AccountRepository) RecordClientDetails(ctx context.Context, d storage.ClientDetails) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO client_details
		 (account_id, version, utc_offset, osu_path_md5, adapters, adapters_md5,
		  uninstall_md5, disk_signature_md5, display_city, pm_private)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.AccountID, d.Version, int16(d.UTCOffset), d.OsuPathMD5, d.Adapters, d.AdaptersMD5,
		d.UninstallMD5, d.DiskSignatureMD5, d.DisplayCity, d.PMPrivate,
	)
	if err != nil {
		return fmt.Errorf("inserting client details: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (r *AccountRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *AccountRepository) exec(ctx context.Context, what, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
