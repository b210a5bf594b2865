package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository lookups return nil, nil when no user matches
type UserRepository interface {
	// CreateUser returns *DuplicateEntryError when email or username is taken
	CreateUser(ctx context.Context, tx pgx.Tx, user *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, password Password) error
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged
// and an empty PhoneNumber clears it.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
}

// DirectoryRepository backs account management
type DirectoryRepository interface {
	// ListUsers returns users newest first
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)
	// UpdateProfile returns nil, nil when no user matches
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error)
	// DeleteUser returns ErrUserNotFound or ErrUserInUse
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// Repository is everything Service needs from storage
type Repository interface {
	UserRepository
	DirectoryRepository
}
