/*
Package store defines the persistence boundary for users and messages.

Two implementations are provided: Postgres (pgx) for deployments and an
in-process memory store for development and tests. Flag updates on messages are
conditional on the current flag value, so concurrent writers observe each
transition exactly once through the returned changed ids.
*/
package store

import (
	"context"
	"errors"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

var (
	// ErrNotFound is returned when a user or message does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateEmail is returned when creating a user whose email is taken.
	ErrDuplicateEmail = errors.New("store: duplicate email")
)

// MessageStore persists messages and their delivery flags.
type MessageStore interface {
	// CreateMessage inserts msg, assigning ID and CreatedAt when empty. Stores that
	// enforce references return ErrNotFound when a participant does not exist.
	CreateMessage(ctx context.Context, msg *message.Message) error

	// GetMessage returns the message with the given id or ErrNotFound.
	GetMessage(ctx context.Context, id string) (*message.Message, error)

	// FindConversation returns every message exchanged between a and b,
	// ordered by creation time and then insertion order.
	FindConversation(ctx context.Context, a, b string) ([]message.Message, error)

	// FindUndelivered returns messages addressed to receiverID that are not delivered.
	FindUndelivered(ctx context.Context, receiverID string) ([]message.Message, error)

	// FindUnseen returns messages from senderID to receiverID that are not seen.
	FindUnseen(ctx context.Context, senderID, receiverID string) ([]message.Message, error)

	// UpdateMany applies patch to ids and returns the ids whose flags actually changed.
	UpdateMany(ctx context.Context, ids []string, patch message.Patch) ([]string, error)

	// UpdateOne applies patch to id and returns the current record and whether it changed.
	UpdateOne(ctx context.Context, id string, patch message.Patch) (*message.Message, bool, error)

	// CountUnseenBySender returns sender->count of unseen messages addressed to receiverID.
	// Senders with no unseen messages are absent.
	CountUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error)
}

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts u, assigning ID and CreatedAt. Returns ErrDuplicateEmail on conflict.
	CreateUser(ctx context.Context, u *user.User) error

	GetUserByID(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)

	// ListUsersExcept returns every user other than id, ordered by name.
	ListUsersExcept(ctx context.Context, id string) ([]user.User, error)

	UpdateProfileInfo(ctx context.Context, id string, update user.ProfileUpdate) (*user.User, error)

	// UpdateProfileImage stores url and returns the updated user with the previous url.
	UpdateProfileImage(ctx context.Context, id string, url string) (*user.User, string, error)
}

// Store bundles both persistence interfaces.
type Store interface {
	MessageStore
	UserStore
}
