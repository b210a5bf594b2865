package users

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/winbid/pkg/auth"
)

// PasswordScheme tells how Password.Value must be interpreted
type PasswordScheme string

const (
	SchemeHashed PasswordScheme = "argon2id"
	// SchemeLegacyPlaintext marks accounts imported before hashing was introduced.
	// They are rehashed on the next successful login.
	SchemeLegacyPlaintext PasswordScheme = "plaintext"
)

// Password is either an argon2id hash or a legacy plaintext value
type Password struct {
	Scheme PasswordScheme
	Value  string
}

func HashedPassword(hash string) Password {
	return Password{Scheme: SchemeHashed, Value: hash}
}

func LegacyPassword(plain string) Password {
	return Password{Scheme: SchemeLegacyPlaintext, Value: plain}
}

func (p Password) IsLegacy() bool {
	return p.Scheme == SchemeLegacyPlaintext
}

// Verify checks candidate against the stored value
func (p Password) Verify(candidate string) (bool, error) {
	switch p.Scheme {
	case SchemeHashed:
		return auth.VerifyPassword(p.Value, candidate)
	case SchemeLegacyPlaintext:
		return subtle.ConstantTimeCompare([]byte(p.Value), []byte(candidate)) == 1, nil
	default:
		return false, errors.New("unknown password scheme: " + string(p.Scheme))
	}
}

type User struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Username        string     `json:"username" db:"username"`
	Email           string     `json:"email" db:"email"`
	Password        Password   `json:"-" db:"-"` // Never return in JSON
	FirstName       string     `json:"firstName" db:"first_name"`
	LastName        string     `json:"lastName" db:"last_name"`
	PhoneNumber     string     `json:"phoneNumber,omitempty" db:"phone_number"`
	Role            string     `json:"role" db:"role"`
	IsEmailVerified bool       `json:"isEmailVerified" db:"is_email_verified"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty" db:"email_verified_at"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

func (u *User) Identity() auth.Identity {
	return auth.Identity{
		UserID:   u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
	}
}

func (u *User) IsAdmin() bool {
	return u.Role == auth.RoleAdmin
}

// ErrDuplicateEntry matches any *DuplicateEntryError with errors.Is
var ErrDuplicateEntry = errors.New("duplicate entry")

// DuplicateEntryError names the unique fields that collided
type DuplicateEntryError struct {
	Fields []string
}

func (e *DuplicateEntryError) Error() string {
	return "duplicate entry: " + strings.Join(e.Fields, ", ")
}

func (e *DuplicateEntryError) Is(target error) bool {
	return target == ErrDuplicateEntry
}
