// Package store defines the persistence boundary of the notification core.
//
// The core depends on users, contact rosters and message history only
// through the Store interface; implementations live in the gormstore
// (SQLite/PostgreSQL) and memory subpackages. All operations may block and
// take a context. Failures surface to sessions as the generic internal
// error code unless a more specific mapping exists.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/retroproto/msnpd/internal/protocol/msnp"
	"github.com/retroproto/msnpd/pkg/store/models"
)

var (
	// ErrUserNotFound is returned when no user exists for an identity.
	ErrUserNotFound = errors.New("store: user not found")

	// ErrUserExists is returned when creating a user whose identity is taken.
	ErrUserExists = errors.New("store: user already exists")

	// ErrDuplicateContact is returned when (owner, peer, list) already exists.
	ErrDuplicateContact = errors.New("store: contact already on list")
)

// Store is the persistence interface consumed by the notification core.
type Store interface {
	// GetUser looks up a user by identity (normalized, case-insensitive).
	// Returns ErrUserNotFound when the identity is unknown.
	GetUser(ctx context.Context, identity string) (*models.User, error)

	// CreateUser inserts a new user record. Returns ErrUserExists on
	// identity collision.
	CreateUser(ctx context.Context, user *models.User) error

	// ListUsers returns all user records, identity ascending.
	ListUsers(ctx context.Context) ([]models.User, error)

	// DeleteUser removes a user and their owned contact entries. Idempotent.
	DeleteUser(ctx context.Context, identity string) error

	// ListContacts returns every contact entry owned by the identity.
	// Ordering is not guaranteed; callers sort as needed.
	ListContacts(ctx context.Context, owner string) ([]models.Contact, error)

	// AddContact inserts (owner, peer, list). Returns ErrDuplicateContact
	// when the entry already exists.
	AddContact(ctx context.Context, owner, peer, nickname string, list msnp.ListTag) error

	// RemoveContact deletes (owner, peer, list). Idempotent.
	RemoveContact(ctx context.Context, owner, peer string, list msnp.ListTag) error

	// AppendMessage records a message in history. Best-effort: callers log
	// failures and continue.
	AppendMessage(ctx context.Context, from, to, body string, sentAt time.Time) error

	// Close releases the underlying database resources.
	Close() error
}
