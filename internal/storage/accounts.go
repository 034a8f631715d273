// Package storage defines the account repository shared by the postgres and
// sqlite backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
)

// BotAccountID is reserved for the resident bot. Stored accounts start
// above it.
const BotAccountID int32 = 3

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when attempting to create a duplicate name.
var ErrAccountExists = errors.New("account already exists")

// Account is a registered player.
type Account struct {
	ID           int32
	Name         string
	PasswordHash string
	Country      string
	Privileges   ruleset.Privileges
	Friends      []int32
	CreatedAt    time.Time
}

// ClientDetails is the installation fingerprint a client reported at login.
type ClientDetails struct {
	AccountID        int32
	Version          string
	UTCOffset        int8
	OsuPathMD5       string
	Adapters         string
	AdaptersMD5      string
	UninstallMD5     string
	DiskSignatureMD5 string
	DisplayCity      bool
	PMPrivate        bool
}

// Repository persists accounts. Implementations are safe for concurrent use.
type Repository interface {
	// FetchByName returns the account whose name matches case-insensitively,
	// or ErrAccountNotFound.
	FetchByName(ctx context.Context, name string) (Account, error)
	// FetchByID returns the account with id, or ErrAccountNotFound.
	FetchByID(ctx context.Context, id int32) (Account, error)
	// Create stores a new account with the next free id above BotAccountID.
	// passwordHash must already be hashed (see HashPassword).
	Create(ctx context.Context, name, passwordHash, country string, privileges ruleset.Privileges) (Account, error)
	// VerifyPassword reports whether plain matches hash.
	VerifyPassword(plain, hash string) bool
	SetPrivileges(ctx context.Context, id int32, privileges ruleset.Privileges) error
	SetFriends(ctx context.Context, id int32, friends []int32) error
	// RecordClientDetails appends a login fingerprint for an account.
	RecordClientDetails(ctx context.Context, d ClientDetails) error
	Close() error
}

// SafeName is the lookup key for an account name.
func SafeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// ValidateName checks an account name before it is stored.
//
// Postcondition: Returns nil if name is 2-15 characters of letters, digits,
// spaces, or "-_[]".
func ValidateName(name string) error {
	if n := len(name); n < 2 || n > 15 {
		return fmt.Errorf("name must be 2-15 characters, got %d", n)
	}
	if strings.TrimSpace(name) != name {
		return errors.New("name must not start or end with a space")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune(" -_[]", r):
		default:
			return fmt.Errorf("name contains invalid character %q", r)
		}
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password. Clients send an
// md5 digest, so the input is always short enough for bcrypt.
//
// Precondition: password must be non-empty.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
//
// Postcondition: Returns true if password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
