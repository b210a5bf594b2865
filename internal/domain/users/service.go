package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/floroz/winbid/internal/validation"
	"github.com/floroz/winbid/pkg/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("forbidden: users can only access their own account")
	ErrUserInUse          = errors.New("user has bids, products or wins and cannot be deleted")
	ErrCannotDeleteSelf   = errors.New("admins cannot delete their own account")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Service struct {
	userRepo Repository
	signer   *auth.Signer
	validate *validation.Validator
	logger   *slog.Logger
}

func NewService(userRepo Repository, signer *auth.Signer, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		signer:   signer,
		validate: validation.New(),
		logger:   logger,
	}
}

// Login checks credentials and issues an access token.
// Legacy plaintext passwords are rehashed after a successful match.
func (s *Service) Login(ctx context.Context, email, password string) (*User, *auth.Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}

	valid, err := user.Password.Verify(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, nil, ErrInvalidCredentials
	}

	if user.Password.IsLegacy() {
		s.migratePassword(ctx, user, password)
	}

	token, err := s.signer.GenerateToken(user.Identity())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return user, token, nil
}

func (s *Service) migratePassword(ctx context.Context, user *User, plain string) {
	hash, err := auth.HashPassword(plain)
	if err != nil {
		s.logger.Error("Failed to hash legacy password", "user_id", user.ID, "error", err)
		return
	}
	migrated := HashedPassword(hash)
	if err := s.userRepo.UpdatePassword(ctx, user.ID, migrated); err != nil {
		s.logger.Error("Failed to migrate legacy password", "user_id", user.ID, "error", err)
		return
	}
	user.Password = migrated
	s.logger.Info("Migrated legacy password", "user_id", user.ID)
}

// GetMe returns the authenticated user's profile
func (s *Service) GetMe(ctx context.Context, userID uuid.UUID) (*User, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetUser returns a profile to its owner or to an admin
func (s *Service) GetUser(ctx context.Context, id, requesterID uuid.UUID, requesterAdmin bool) (*User, error) {
	if id != requesterID && !requesterAdmin {
		return nil, ErrForbidden
	}
	return s.GetMe(ctx, id)
}

// UpdateUserCommand edits profile fields. Email, username, role and password are not editable here.
type UpdateUserCommand struct {
	UserID         uuid.UUID `json:"-"`
	RequesterID    uuid.UUID `json:"-"`
	RequesterAdmin bool      `json:"-"`
	FirstName      *string   `json:"firstName" validate:"omitempty,max=100"`
	LastName       *string   `json:"lastName" validate:"omitempty,max=100"`
	PhoneNumber    *string   `json:"phoneNumber"`
}

// ListUsers is admin only
func (s *Service) ListUsers(ctx context.Context, limit, offset int, requesterAdmin bool) ([]*User, error) {
	if !requesterAdmin {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.userRepo.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return list, nil
}

// UpdateUser lets a user edit their own profile, or an admin edit anyone's
func (s *Service) UpdateUser(ctx context.Context, cmd UpdateUserCommand) (*User, error) {
	if cmd.UserID != cmd.RequesterID && !cmd.RequesterAdmin {
		return nil, ErrForbidden
	}
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	cmd.FirstName = trim(cmd.FirstName)
	cmd.LastName = trim(cmd.LastName)
	cmd.PhoneNumber = trim(cmd.PhoneNumber)
	if err := s.validate.Struct(cmd); err != nil {
		return nil, err
	}
	// names can change but never become blank
	if cmd.FirstName != nil && *cmd.FirstName == "" {
		return nil, validation.Field("firstName", "is required")
	}
	if cmd.LastName != nil && *cmd.LastName == "" {
		return nil, validation.Field("lastName", "is required")
	}
	if cmd.PhoneNumber != nil && *cmd.PhoneNumber != "" {
		if err := s.validate.Var("phoneNumber", *cmd.PhoneNumber, "phone"); err != nil {
			return nil, err
		}
	}

	user, err := s.userRepo.UpdateProfile(ctx, cmd.UserID, ProfileUpdate{
		FirstName:   cmd.FirstName,
		LastName:    cmd.LastName,
		PhoneNumber: cmd.PhoneNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// DeleteUser is admin only. Accounts referenced by bids, products or wins are kept.
func (s *Service) DeleteUser(ctx context.Context, id, requesterID uuid.UUID, requesterAdmin bool) error {
	if !requesterAdmin {
		return ErrForbidden
	}
	if id == requesterID {
		return ErrCannotDeleteSelf
	}
	if err := s.userRepo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserInUse) {
			return err
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info("User deleted", "user_id", id, "by", requesterID)
	return nil
}
