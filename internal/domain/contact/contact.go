package contact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/winbid/internal/notify"
	"github.com/floroz/winbid/internal/ratelimit"
	"github.com/floroz/winbid/internal/validation"
)

type Status string

const (
	StatusNew      Status = "new"
	StatusRead     Status = "read"
	StatusReplied  Status = "replied"
	StatusArchived Status = "archived"
)

type Message struct {
	ID        uuid.UUID  `json:"id"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	Subject   string     `json:"subject"`
	Message   string     `json:"message"`
	Status    Status     `json:"status"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Repository persists contact form submissions
type Repository interface {
	CreateMessage(ctx context.Context, msg *Message) error
	// CountSince counts submissions from email created at or after since
	CountSince(ctx context.Context, email string, since time.Time) (int, error)
}

type Dispatcher interface {
	Dispatch(msg notify.Message)
}

type SubmitCommand struct {
	FirstName string `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string `json:"lastName" validate:"required,min=1,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Subject   string `json:"subject" validate:"required,min=3,max=200"`
	Message   string `json:"message" validate:"required,min=10,max=5000"`
}

type Service struct {
	repo       Repository
	dispatcher Dispatcher
	adminEmail string
	validate   *validation.Validator
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, dispatcher Dispatcher, adminEmail string, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		adminEmail: adminEmail,
		validate:   validation.New(),
		logger:     logger,
		now:        time.Now,
	}
}

// Submit stores a contact message and notifies both the sender and the admin inbox
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand, userID *uuid.UUID) (*Message, error) {
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	cmd.FirstName = strings.TrimSpace(cmd.FirstName)
	cmd.LastName = strings.TrimSpace(cmd.LastName)
	cmd.Subject = strings.TrimSpace(cmd.Subject)
	cmd.Message = strings.TrimSpace(cmd.Message)
	if err := s.validate.Struct(cmd); err != nil {
		return nil, err
	}

	now := s.now()
	policy := ratelimit.ContactPolicy
	count, err := s.repo.CountSince(ctx, cmd.Email, now.Add(-policy.Window))
	if err != nil {
		// fail open
		s.logger.Error("Failed to count recent contact messages", "error", err)
	} else if count >= policy.Max {
		return nil, &ratelimit.LimitError{Policy: policy.Name, ResetAt: now.Add(policy.Window)}
	}

	msg := &Message{
		ID:        uuid.New(),
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Email:     cmd.Email,
		Subject:   cmd.Subject,
		Message:   cmd.Message,
		Status:    StatusNew,
		UserID:    userID,
		CreatedAt: now,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save contact message: %w", err)
	}

	s.dispatcher.Dispatch(notify.Message{
		To:       msg.Email,
		Template: notify.TemplateContactConfirmation,
		Data:     map[string]string{"firstName": msg.FirstName, "subject": msg.Subject},
	})
	if s.adminEmail != "" {
		s.dispatcher.Dispatch(notify.Message{
			To:       s.adminEmail,
			Template: notify.TemplateContactAdmin,
			Data: map[string]string{
				"messageId": msg.ID.String(),
				"name":      msg.FirstName + " " + msg.LastName,
				"email":     msg.Email,
				"subject":   msg.Subject,
				"message":   msg.Message,
			},
		})
	}

	s.logger.Info("Contact message received", "message_id", msg.ID)
	return msg, nil
}
