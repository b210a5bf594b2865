package bids

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/domain/winners"
	"github.com/floroz/winbid/pkg/database"
	"github.com/floroz/winbid/pkg/events"
)

type PlaceBidCommand struct {
	ProductID uuid.UUID
	UserID    uuid.UUID
	Amount    decimal.Decimal
}

// Validation errors
var (
	ErrInvalidBid      = errors.New("invalid bid")
	ErrBidNotFound     = errors.New("bid not found")
	ErrProductNotFound = products.ErrProductNotFound
	ErrBiddingClosed   = errors.New("bidding is closed for this product")
	ErrForbidden       = errors.New("forbidden: only the bid author or an admin can delete a bid")
	ErrBidLocked       = errors.New("winning bid cannot be deleted")
	ErrProductBusy     = errors.New("product is busy with other bids, try again")
)

// Picker returns an index in [0, n)
type Picker func(n int) (int, error)

// CryptoPicker draws uniformly using crypto/rand
func CryptoPicker(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("cannot pick from %d bids", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Recorder receives settlement outcomes for metrics
type Recorder interface {
	BidAccepted(d time.Duration)
	BidRejected(reason string)
	AuctionSettled()
}

type noopRecorder struct{}

func (noopRecorder) BidAccepted(time.Duration) {}
func (noopRecorder) BidRejected(string)        {}
func (noopRecorder) AuctionSettled()           {}

type Option func(*AuctionService)

func WithPicker(p Picker) Option {
	return func(s *AuctionService) { s.pick = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *AuctionService) { s.recorder = r }
}

func validateBid(cmd PlaceBidCommand) error {
	if cmd.ProductID == uuid.Nil {
		return fmt.Errorf("%w: product is required", ErrInvalidBid)
	}
	if cmd.UserID == uuid.Nil {
		return fmt.Errorf("%w: user is required", ErrInvalidBid)
	}
	if cmd.Amount.LessThan(MinBidAmount) {
		return fmt.Errorf("%w: amount must be at least %s", ErrInvalidBid, MinBidAmount.StringFixed(2))
	}
	return nil
}

// AuctionService accepts bids and settles raffles once a product reaches its target
type AuctionService struct {
	txManager    database.TransactionManager
	bidRepo      BidRepository
	productRepo  ProductRepository
	winnerRepo   WinnerRepository
	wishlistRepo WishlistRepository
	outboxRepo   events.OutboxWriter
	logger       *slog.Logger
	pick         Picker
	recorder     Recorder
}

// NewAuctionService creates a new auction service
func NewAuctionService(
	txManager database.TransactionManager,
	bidRepo BidRepository,
	productRepo ProductRepository,
	winnerRepo WinnerRepository,
	wishlistRepo WishlistRepository,
	outboxRepo events.OutboxWriter,
	logger *slog.Logger,
	opts ...Option,
) *AuctionService {
	s := &AuctionService{
		txManager:    txManager,
		bidRepo:      bidRepo,
		productRepo:  productRepo,
		winnerRepo:   winnerRepo,
		wishlistRepo: wishlistRepo,
		outboxRepo:   outboxRepo,
		logger:       logger,
		pick:         CryptoPicker,
		recorder:     noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid records a bid and, when it is the one that fills the product, settles the auction.
// Everything happens in one transaction together with the outbox events.
func (s *AuctionService) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*SettlementResult, error) {
	start := time.Now()

	if err := validateBid(cmd); err != nil {
		s.recorder.BidRejected("invalid")
		return nil, err
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	// Bids on the same product queue up behind this lock
	product, err := s.productRepo.GetProductByIDForUpdate(ctx, tx, cmd.ProductID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			s.recorder.BidRejected("not_found")
			return nil, ErrProductNotFound
		}
		if database.IsLockTimeout(err) {
			s.recorder.BidRejected("busy")
			return nil, ErrProductBusy
		}
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}
	if product.IsClosed {
		s.recorder.BidRejected("closed")
		return nil, ErrBiddingClosed
	}

	bid := &Bid{
		ID:        uuid.New(),
		ProductID: cmd.ProductID,
		UserID:    cmd.UserID,
		Amount:    cmd.Amount.Round(2),
		PlacedAt:  time.Now().UTC(),
	}
	if saveErr := s.bidRepo.SaveBid(ctx, tx, bid); saveErr != nil {
		return nil, fmt.Errorf("failed to save bid: %w", saveErr)
	}

	result, err := s.processBid(ctx, tx, bid.ID)
	if err != nil {
		return nil, err
	}

	if err := s.writeEvents(ctx, tx, result); err != nil {
		return nil, err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	s.recorder.BidAccepted(time.Since(start))
	if result.IsBiddingComplete {
		s.recorder.AuctionSettled()
		s.logger.Info("Auction settled",
			"product_id", result.Product.ID,
			"winner_user_id", result.Winner.UserID,
			"bid_id", result.Winner.BidID,
			"bids", result.Product.CurrentBidCount)
	}
	return result, nil
}

// processBid applies an inserted bid to its product: wishlist cleanup, counter, settlement.
func (s *AuctionService) processBid(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*SettlementResult, error) {
	bid, err := s.bidRepo.GetBidByIDTx(ctx, tx, bidID)
	if err != nil {
		if errors.Is(err, ErrBidNotFound) {
			return nil, ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to load bid: %w", err)
	}

	removed := s.removeFromWishlist(ctx, tx, bid)

	product, err := s.productRepo.IncrementBidCount(ctx, tx, bid.ProductID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to increment bid count: %w", err)
	}

	result := &SettlementResult{
		Bid:             bid,
		Product:         product,
		WishlistRemoved: removed,
	}

	if !product.ReachedTarget() || product.IsClosed {
		return result, nil
	}

	winner, err := s.settle(ctx, tx, product)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		// someone else closed it
		return result, nil
	}

	product.IsClosed = true
	product.WinnerID = &winner.UserID
	if winner.BidID == bid.ID {
		bid.IsWinning = true
	}
	result.Winner = winner
	result.IsBiddingComplete = true
	return result, nil
}

// settle draws the winning bid and records it. A nil winner means the product was already closed.
func (s *AuctionService) settle(ctx context.Context, tx pgx.Tx, product *products.Product) (*winners.Winner, error) {
	pool, err := s.bidRepo.ListBidsByProductTx(ctx, tx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("failed to settle product %s: no bids", product.ID)
	}

	idx, err := s.pick(len(pool))
	if err != nil {
		return nil, fmt.Errorf("failed to pick winning bid: %w", err)
	}
	if idx < 0 || idx >= len(pool) {
		return nil, fmt.Errorf("failed to pick winning bid: index %d out of range", idx)
	}
	chosen := pool[idx]

	closed, err := s.productRepo.CloseProduct(ctx, tx, product.ID, chosen.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to close product: %w", err)
	}
	if !closed {
		s.logger.Warn("Product already closed, skipping settlement", "product_id", product.ID)
		return nil, nil
	}

	marked, err := s.bidRepo.MarkWinning(ctx, tx, chosen.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark winning bid: %w", err)
	}
	if !marked {
		return nil, fmt.Errorf("failed to mark winning bid %s: already winning", chosen.ID)
	}

	winner := &winners.Winner{
		ID:            uuid.New(),
		ProductID:     product.ID,
		UserID:        chosen.UserID,
		BidID:         chosen.ID,
		WinningAmount: chosen.Amount,
		WonAt:         time.Now().UTC(),
	}
	if err := s.winnerRepo.CreateWinner(ctx, tx, winner); err != nil {
		return nil, fmt.Errorf("failed to create winner: %w", err)
	}
	return winner, nil
}

// removeFromWishlist never fails the bid. It runs in a savepoint so a failed
// statement does not abort the surrounding transaction.
func (s *AuctionService) removeFromWishlist(ctx context.Context, tx pgx.Tx, bid *Bid) bool {
	sp, err := tx.Begin(ctx)
	if err != nil {
		s.logger.Warn("Failed to open wishlist savepoint", "bid_id", bid.ID, "error", err)
		return false
	}

	removed, err := s.wishlistRepo.RemoveFromWishlist(ctx, sp, bid.UserID, bid.ProductID)
	if err != nil {
		_ = sp.Rollback(ctx)
		s.logger.Warn("Failed to remove product from wishlist",
			"user_id", bid.UserID, "product_id", bid.ProductID, "error", err)
		return false
	}
	if err := sp.Commit(ctx); err != nil {
		s.logger.Warn("Failed to release wishlist savepoint", "bid_id", bid.ID, "error", err)
		return false
	}
	return removed
}

func (s *AuctionService) writeEvents(ctx context.Context, tx pgx.Tx, result *SettlementResult) error {
	bid := result.Bid
	placed, err := events.NewOutboxEvent(events.EventBidPlaced, map[string]any{
		"bidId":     bid.ID,
		"productId": bid.ProductID,
		"userId":    bid.UserID,
		"amount":    bid.Amount,
		"placedAt":  bid.PlacedAt,
	})
	if err != nil {
		return err
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, placed); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	if !result.IsBiddingComplete {
		return nil
	}

	w := result.Winner
	settled, err := events.NewOutboxEvent(events.EventAuctionSettled, map[string]any{
		"productId": w.ProductID,
		"winnerId":  w.ID,
		"userId":    w.UserID,
		"bidId":     w.BidID,
		"amount":    w.WinningAmount,
		"wonAt":     w.WonAt,
	})
	if err != nil {
		return err
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, settled); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

// GetBid retrieves a single bid
func (s *AuctionService) GetBid(ctx context.Context, bidID uuid.UUID) (*Bid, error) {
	bid, err := s.bidRepo.GetBidByID(ctx, bidID)
	if err != nil {
		if errors.Is(err, ErrBidNotFound) {
			return nil, ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return bid, nil
}

// GetBidsForProduct lists a product's bids, highest amount first
func (s *AuctionService) GetBidsForProduct(ctx context.Context, productID uuid.UUID) ([]*Bid, error) {
	list, err := s.bidRepo.GetBidsByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids for product: %w", err)
	}
	return list, nil
}

// GetBidsByUser lists a user's bids, newest first
func (s *AuctionService) GetBidsByUser(ctx context.Context, userID uuid.UUID) ([]*Bid, error) {
	list, err := s.bidRepo.GetBidsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids for user: %w", err)
	}
	return list, nil
}

// GetHighestBid is informational. The raffle does not favour higher amounts.
func (s *AuctionService) GetHighestBid(ctx context.Context, productID uuid.UUID) (*Bid, error) {
	bid, err := s.bidRepo.GetHighestBid(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}
	return bid, nil
}

// DeleteBid removes a bid without touching the product's counter
func (s *AuctionService) DeleteBid(ctx context.Context, bidID uuid.UUID, requester Requester) error {
	bid, err := s.GetBid(ctx, bidID)
	if err != nil {
		return err
	}
	if !requester.IsAdmin && bid.UserID != requester.UserID {
		return ErrForbidden
	}
	if bid.IsWinning {
		return ErrBidLocked
	}

	if err := s.bidRepo.DeleteBid(ctx, bidID); err != nil {
		if errors.Is(err, ErrBidLocked) {
			return ErrBidLocked
		}
		return fmt.Errorf("failed to delete bid: %w", err)
	}
	s.logger.Info("Bid deleted", "bid_id", bidID, "by", requester.UserID)
	return nil
}
