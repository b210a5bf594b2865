package userstats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/notify"
)

type mockTx struct {
	pgx.Tx
	mock.Mock
}

func (m *mockTx) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTx) Rollback(ctx context.Context) error {
	m.Called(ctx)
	return nil
}

type mockTxManager struct {
	mock.Mock
}

func (m *mockTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) IncrementBidStats(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal, lastBidAt time.Time) error {
	return m.Called(ctx, tx, userID, amount, lastBidAt).Error(0)
}

func (m *mockRepo) IncrementAuctionsWon(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	return m.Called(ctx, tx, userID).Error(0)
}

func (m *mockRepo) GetUserStats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserStats), args.Error(1)
}

func (m *mockRepo) MarkEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	return m.Called(ctx, tx, eventID).Error(0)
}

func (m *mockRepo) IsEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, eventID)
	return args.Bool(0), args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUserByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*users.User), args.Error(1)
}

type recordingDispatcher struct {
	messages []notify.Message
}

func (d *recordingDispatcher) Dispatch(msg notify.Message) {
	d.messages = append(d.messages, msg)
}

type fixture struct {
	repo       *mockRepo
	txm        *mockTxManager
	tx         *mockTx
	users      *mockUsers
	dispatcher *recordingDispatcher
	svc        *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:       new(mockRepo),
		txm:        new(mockTxManager),
		tx:         new(mockTx),
		users:      new(mockUsers),
		dispatcher: &recordingDispatcher{},
	}
	f.txm.On("BeginTx", mock.Anything).Return(f.tx, nil)
	f.tx.On("Rollback", mock.Anything).Maybe()
	f.svc = NewService(f.repo, f.txm, f.users, f.dispatcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func TestService_ProcessBidPlaced(t *testing.T) {
	event := BidPlacedEvent{
		EventID:  uuid.New(),
		UserID:   uuid.New(),
		Amount:   decimal.RequireFromString("12.50"),
		PlacedAt: time.Now().UTC(),
	}

	t.Run("applies a new event", func(t *testing.T) {
		f := newFixture()
		f.repo.On("IsEventProcessed", mock.Anything, f.tx, event.EventID).Return(false, nil)
		f.repo.On("IncrementBidStats", mock.Anything, f.tx, event.UserID, event.Amount, event.PlacedAt).Return(nil)
		f.repo.On("MarkEventProcessed", mock.Anything, f.tx, event.EventID).Return(nil)
		f.tx.On("Commit", mock.Anything).Return(nil)

		require.NoError(t, f.svc.ProcessBidPlaced(context.Background(), event))
		f.repo.AssertExpectations(t)
		f.tx.AssertExpectations(t)
	})

	t.Run("skips a duplicate", func(t *testing.T) {
		f := newFixture()
		f.repo.On("IsEventProcessed", mock.Anything, f.tx, event.EventID).Return(true, nil)

		require.NoError(t, f.svc.ProcessBidPlaced(context.Background(), event))
		f.repo.AssertNotCalled(t, "IncrementBidStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.tx.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("returns repository failures for redelivery", func(t *testing.T) {
		f := newFixture()
		f.repo.On("IsEventProcessed", mock.Anything, f.tx, event.EventID).Return(false, nil)
		f.repo.On("IncrementBidStats", mock.Anything, f.tx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("deadlock"))

		err := f.svc.ProcessBidPlaced(context.Background(), event)
		assert.Error(t, err)
		f.repo.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_ProcessAuctionSettled(t *testing.T) {
	event := AuctionSettledEvent{
		EventID:   uuid.New(),
		ProductID: uuid.New(),
		UserID:    uuid.New(),
		Amount:    decimal.NewFromInt(20),
	}

	t.Run("counts the win and emails the winner", func(t *testing.T) {
		f := newFixture()
		f.repo.On("IsEventProcessed", mock.Anything, f.tx, event.EventID).Return(false, nil)
		f.repo.On("IncrementAuctionsWon", mock.Anything, f.tx, event.UserID).Return(nil)
		f.repo.On("MarkEventProcessed", mock.Anything, f.tx, event.EventID).Return(nil)
		f.tx.On("Commit", mock.Anything).Return(nil)
		f.users.On("GetUserByID", mock.Anything, event.UserID).Return(&users.User{Email: "win@example.com", FirstName: "Wyn"}, nil)

		require.NoError(t, f.svc.ProcessAuctionSettled(context.Background(), event))
		require.Len(t, f.dispatcher.messages, 1)
		assert.Equal(t, "win@example.com", f.dispatcher.messages[0].To)
		assert.Equal(t, notify.TemplateAuctionWon, f.dispatcher.messages[0].Template)
		assert.Equal(t, "20.00", f.dispatcher.messages[0].Data["amount"])
	})

	t.Run("duplicate delivery sends no second email", func(t *testing.T) {
		f := newFixture()
		f.repo.On("IsEventProcessed", mock.Anything, f.tx, event.EventID).Return(true, nil)

		require.NoError(t, f.svc.ProcessAuctionSettled(context.Background(), event))
		assert.Empty(t, f.dispatcher.messages)
		f.users.AssertNotCalled(t, "GetUserByID", mock.Anything, mock.Anything)
	})

	t.Run("missing winner is not an error", func(t *testing.T) {
		f := newFixture()
		f.repo.On("IsEventProcessed", mock.Anything, f.tx, event.EventID).Return(false, nil)
		f.repo.On("IncrementAuctionsWon", mock.Anything, f.tx, event.UserID).Return(nil)
		f.repo.On("MarkEventProcessed", mock.Anything, f.tx, event.EventID).Return(nil)
		f.tx.On("Commit", mock.Anything).Return(nil)
		f.users.On("GetUserByID", mock.Anything, event.UserID).Return(nil, nil)

		require.NoError(t, f.svc.ProcessAuctionSettled(context.Background(), event))
		assert.Empty(t, f.dispatcher.messages)
	})
}

func TestService_GetUserStats(t *testing.T) {
	userID := uuid.New()

	f := newFixture()
	f.repo.On("GetUserStats", mock.Anything, userID).Return(nil, ErrStatsNotFound)
	_, err := f.svc.GetUserStats(context.Background(), userID)
	assert.ErrorIs(t, err, ErrStatsNotFound)

	f = newFixture()
	f.repo.On("GetUserStats", mock.Anything, userID).Return(&UserStats{UserID: userID, TotalBidsPlaced: 3}, nil)
	stats, err := f.svc.GetUserStats(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalBidsPlaced)
}
