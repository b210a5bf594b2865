package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/notify"
	"github.com/floroz/winbid/internal/ratelimit"
	"github.com/floroz/winbid/internal/validation"
	"github.com/floroz/winbid/pkg/auth"
	"github.com/floroz/winbid/pkg/database"
	"github.com/floroz/winbid/pkg/events"
)

const (
	DefaultSessionTTL  = 300 * time.Second
	DefaultMaxAttempts = 5
)

var (
	ErrSessionExpired = errors.New("registration session expired or not found")
	ErrEmailMismatch  = errors.New("email does not match the registration session")
	ErrInvalidOTP     = errors.New("invalid verification code")
)

// Notifier is the subset of notify.Dispatcher the registration flow needs
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
	Dispatch(msg notify.Message)
}

type InitiateCommand struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	FirstName   string `json:"firstName" validate:"required,min=1,max=100"`
	LastName    string `json:"lastName" validate:"required,min=1,max=100"`
	Username    string `json:"username" validate:"required,min=3,max=20,username"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,phone"`
}

type ResendCommand struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

type VerifyCommand struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
	Token string `json:"token" validate:"required"`
}

// Pending is returned while a registration waits for its code
type Pending struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

type Registered struct {
	User  *users.User
	Token *auth.Token
}

type Config struct {
	SessionTTL  time.Duration
	MaxAttempts int
}

type Option func(*Service)

// WithPasswordHasher replaces auth.HashPassword
func WithPasswordHasher(h func(string) (string, error)) Option {
	return func(s *Service) { s.hashPassword = h }
}

// WithOTPGenerator replaces GenerateOTP
func WithOTPGenerator(g func() (string, error)) Option {
	return func(s *Service) { s.generateOTP = g }
}

// WithLimiter enables the per-email OTP request limit
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// Service runs the email-verified sign-up flow
type Service struct {
	store     SessionStore
	userRepo  users.UserRepository
	txManager database.TransactionManager
	outbox    events.OutboxWriter
	signer    *auth.Signer
	notifier  Notifier
	validate  *validation.Validator
	cfg       Config
	logger    *slog.Logger

	limiter      ratelimit.Limiter
	hashPassword func(string) (string, error)
	generateOTP  func() (string, error)
}

func NewService(
	store SessionStore,
	userRepo users.UserRepository,
	txManager database.TransactionManager,
	outbox events.OutboxWriter,
	signer *auth.Signer,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	s := &Service{
		store:        store,
		userRepo:     userRepo,
		txManager:    txManager,
		outbox:       outbox,
		signer:       signer,
		notifier:     notifier,
		validate:     validation.New(),
		cfg:          cfg,
		logger:       logger,
		hashPassword: auth.HashPassword,
		generateOTP:  GenerateOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Initiate validates the sign-up data, stores a pending session and emails a code
func (s *Service) Initiate(ctx context.Context, cmd InitiateCommand) (*Pending, error) {
	cmd.Email = normalizeEmail(cmd.Email)
	cmd.Username = strings.TrimSpace(cmd.Username)
	cmd.FirstName = strings.TrimSpace(cmd.FirstName)
	cmd.LastName = strings.TrimSpace(cmd.LastName)
	if err := s.validate.Struct(cmd); err != nil {
		return nil, err
	}

	if err := s.checkOTPLimit(ctx, cmd.Email); err != nil {
		return nil, err
	}

	if err := s.checkAvailable(ctx, cmd.Email, cmd.Username); err != nil {
		return nil, err
	}

	passwordHash, err := s.hashPassword(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	code, otpHash, err := s.newOTP()
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	session := &Session{
		Email:        cmd.Email,
		PasswordHash: passwordHash,
		Profile: Profile{
			FirstName:   cmd.FirstName,
			LastName:    cmd.LastName,
			Username:    cmd.Username,
			PhoneNumber: strings.TrimSpace(cmd.PhoneNumber),
		},
		OTPHash:   otpHash,
		CreatedAt: time.Now(),
	}
	if err := s.store.Store(ctx, token, session, s.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("failed to store registration session: %w", err)
	}

	if err := s.sendOTP(ctx, cmd.Email, cmd.FirstName, code); err != nil {
		if delErr := s.store.Delete(ctx, token); delErr != nil {
			s.logger.Error("Failed to discard registration session", "error", delErr)
		}
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("Registration initiated", "email", cmd.Email)
	return &Pending{Token: token, ExpiresIn: int(s.cfg.SessionTTL.Seconds())}, nil
}

// Resend issues a fresh code for an existing session and resets its attempts
func (s *Service) Resend(ctx context.Context, cmd ResendCommand) (*Pending, error) {
	cmd.Email = normalizeEmail(cmd.Email)
	if err := s.validate.Struct(cmd); err != nil {
		return nil, err
	}

	session, err := s.getSession(ctx, cmd.Token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(session.Email, cmd.Email) {
		return nil, ErrEmailMismatch
	}

	if err := s.checkOTPLimit(ctx, cmd.Email); err != nil {
		return nil, err
	}

	code, otpHash, err := s.newOTP()
	if err != nil {
		return nil, err
	}
	if err := s.store.Refresh(ctx, cmd.Token, otpHash, s.cfg.SessionTTL); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to refresh registration session: %w", err)
	}

	if err := s.sendOTP(ctx, session.Email, session.Profile.FirstName, code); err != nil {
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}
	return &Pending{Token: cmd.Token, ExpiresIn: int(s.cfg.SessionTTL.Seconds())}, nil
}

// Verify checks the code and, on success, creates the account and signs the user in
func (s *Service) Verify(ctx context.Context, cmd VerifyCommand) (*Registered, error) {
	cmd.Email = normalizeEmail(cmd.Email)
	cmd.OTP = strings.TrimSpace(cmd.OTP)
	if err := s.validate.Struct(cmd); err != nil {
		return nil, err
	}

	session, err := s.getSession(ctx, cmd.Token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(session.Email, cmd.Email) {
		return nil, ErrEmailMismatch
	}

	// The attempt is reserved before the code is compared so concurrent
	// guesses cannot all read the same count.
	attempt, err := s.reserveAttempt(ctx, cmd.Token)
	if err != nil {
		return nil, err
	}
	if attempt > s.cfg.MaxAttempts {
		return nil, &ratelimit.LimitError{Policy: "otp_verify", ResetAt: session.ExpiresAt}
	}

	if !auth.VerifyOTP(session.OTPHash, cmd.OTP) {
		return nil, ErrInvalidOTP
	}

	user, err := s.createUser(ctx, session)
	if err != nil {
		return nil, err
	}

	token, err := s.signer.GenerateToken(user.Identity())
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.store.Delete(ctx, cmd.Token); err != nil {
		s.logger.Error("Failed to delete registration session", "user_id", user.ID, "error", err)
	}

	s.notifier.Dispatch(notify.Message{
		To:       user.Email,
		Template: notify.TemplateWelcome,
		Data:     map[string]string{"firstName": user.FirstName, "username": user.Username},
	})

	s.logger.Info("User registered", "user_id", user.ID)
	return &Registered{User: user, Token: token}, nil
}

func (s *Service) createUser(ctx context.Context, session *Session) (*users.User, error) {
	now := time.Now().UTC()
	user := &users.User{
		ID:              uuid.New(),
		Username:        session.Profile.Username,
		Email:           session.Email,
		Password:        users.HashedPassword(session.PasswordHash),
		FirstName:       session.Profile.FirstName,
		LastName:        session.Profile.LastName,
		PhoneNumber:     session.Profile.PhoneNumber,
		Role:            auth.RoleUser,
		IsEmailVerified: true,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.userRepo.CreateUser(ctx, tx, user); err != nil {
		var dup *users.DuplicateEntryError
		if errors.As(err, &dup) {
			return nil, dup
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	event, err := events.NewOutboxEvent(events.EventUserRegistered, map[string]any{
		"userId":   user.ID,
		"email":    user.Email,
		"username": user.Username,
	})
	if err != nil {
		return nil, err
	}
	if err := s.outbox.SaveEvent(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return user, nil
}

func (s *Service) getSession(ctx context.Context, token string) (*Session, error) {
	session, err := s.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to load registration session: %w", err)
	}
	return session, nil
}

func (s *Service) reserveAttempt(ctx context.Context, token string) (int, error) {
	n, err := s.store.IncrementAttempts(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return 0, ErrSessionExpired
		}
		return 0, fmt.Errorf("failed to record verification attempt: %w", err)
	}
	return n, nil
}

func (s *Service) checkAvailable(ctx context.Context, email, username string) error {
	var taken []string

	existing, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		taken = append(taken, "email")
	}

	existing, err = s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		taken = append(taken, "username")
	}

	if len(taken) > 0 {
		return &users.DuplicateEntryError{Fields: taken}
	}
	return nil
}

func (s *Service) checkOTPLimit(ctx context.Context, email string) error {
	if s.limiter == nil {
		return nil
	}
	res, err := ratelimit.OTPPolicy.Check(ctx, s.limiter, email)
	if err != nil {
		s.logger.Error("Rate limiter unavailable", "policy", ratelimit.OTPPolicy.Name, "error", err)
		return nil
	}
	if !res.Allowed {
		return &ratelimit.LimitError{Policy: ratelimit.OTPPolicy.Name, ResetAt: res.ResetAt}
	}
	return nil
}

func (s *Service) newOTP() (code, hash string, err error) {
	code, err = s.generateOTP()
	if err != nil {
		return "", "", err
	}
	hash, err = auth.HashOTP(code)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash otp: %w", err)
	}
	return code, hash, nil
}

func (s *Service) sendOTP(ctx context.Context, email, firstName, code string) error {
	return s.notifier.Send(ctx, notify.Message{
		To:       email,
		Template: notify.TemplateOTP,
		Data: map[string]string{
			"firstName": firstName,
			"otp":       code,
			"expiresIn": fmt.Sprintf("%d", int(s.cfg.SessionTTL.Minutes())),
		},
	})
}
