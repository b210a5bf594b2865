package winners

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrWinnerNotFound = errors.New("winner not found")

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service exposes winner lookups
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListWinners returns winners newest first
func (s *Service) ListWinners(ctx context.Context, limit, offset int) ([]*Winner, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	winners, err := s.repo.ListWinners(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners: %w", err)
	}
	return winners, nil
}

func (s *Service) GetWinner(ctx context.Context, id uuid.UUID) (*Winner, error) {
	w, err := s.repo.GetWinnerByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrWinnerNotFound) {
			return nil, ErrWinnerNotFound
		}
		return nil, fmt.Errorf("failed to get winner: %w", err)
	}
	return w, nil
}

func (s *Service) GetWinnersByUser(ctx context.Context, userID uuid.UUID) ([]*Winner, error) {
	winners, err := s.repo.ListWinnersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners for user: %w", err)
	}
	return winners, nil
}

// GetWinnerByProduct returns the single winner of a product
func (s *Service) GetWinnerByProduct(ctx context.Context, productID uuid.UUID) (*Winner, error) {
	w, err := s.repo.GetWinnerByProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrWinnerNotFound) {
			return nil, ErrWinnerNotFound
		}
		return nil, fmt.Errorf("failed to get winner for product: %w", err)
	}
	return w, nil
}
