package userstats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/winbid/internal/notify"
	"github.com/floroz/winbid/pkg/database"
)

var ErrStatsNotFound = errors.New("user stats not found")

type Dispatcher interface {
	Dispatch(msg notify.Message)
}

type Service struct {
	repo       Repository
	txManager  database.TransactionManager
	users      UserLookup
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewService(repo Repository, txManager database.TransactionManager, users UserLookup, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		txManager:  txManager,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *Service) ProcessBidPlaced(ctx context.Context, event BidPlacedEvent) error {
	_, err := s.once(ctx, event.EventID, func(tx pgx.Tx) error {
		if err := s.repo.IncrementBidStats(ctx, tx, event.UserID, event.Amount, event.PlacedAt); err != nil {
			return fmt.Errorf("failed to increment user stats: %w", err)
		}
		return nil
	})
	return err
}

// ProcessAuctionSettled counts the win and emails the winner the first time the event is seen
func (s *Service) ProcessAuctionSettled(ctx context.Context, event AuctionSettledEvent) error {
	applied, err := s.once(ctx, event.EventID, func(tx pgx.Tx) error {
		if err := s.repo.IncrementAuctionsWon(ctx, tx, event.UserID); err != nil {
			return fmt.Errorf("failed to increment auctions won: %w", err)
		}
		return nil
	})
	if err != nil || !applied {
		return err
	}

	s.notifyWinner(ctx, event)
	return nil
}

func (s *Service) notifyWinner(ctx context.Context, event AuctionSettledEvent) {
	if s.users == nil || s.dispatcher == nil {
		return
	}
	user, err := s.users.GetUserByID(ctx, event.UserID)
	if err != nil {
		s.logger.Error("Failed to load winner for notification", "user_id", event.UserID, "error", err)
		return
	}
	if user == nil {
		s.logger.Warn("Winner no longer exists", "user_id", event.UserID)
		return
	}
	s.dispatcher.Dispatch(notify.Message{
		To:       user.Email,
		Template: notify.TemplateAuctionWon,
		Data: map[string]string{
			"firstName": user.FirstName,
			"productId": event.ProductID.String(),
			"amount":    event.Amount.StringFixed(2),
		},
	})
}

// once runs apply in a transaction guarded by the processed_events table.
// It reports whether apply ran.
func (s *Service) once(ctx context.Context, eventID uuid.UUID, apply func(tx pgx.Tx) error) (bool, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	isProcessed, err := s.repo.IsEventProcessed(ctx, tx, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if isProcessed {
		return false, nil
	}

	if err := apply(tx); err != nil {
		return false, err
	}

	if err := s.repo.MarkEventProcessed(ctx, tx, eventID); err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (s *Service) GetUserStats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	stats, err := s.repo.GetUserStats(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrStatsNotFound) {
			return nil, ErrStatsNotFound
		}
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return stats, nil
}
