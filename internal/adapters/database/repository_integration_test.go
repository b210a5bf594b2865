//go:build integration

package database_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/winbid/internal/adapters/database"
	"github.com/floroz/winbid/internal/domain/contact"
	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/domain/userstats"
	"github.com/floroz/winbid/internal/domain/winners"
	"github.com/floroz/winbid/internal/testhelpers"
	"github.com/floroz/winbid/pkg/auth"
	pkgdb "github.com/floroz/winbid/pkg/database"
	pkgevents "github.com/floroz/winbid/pkg/events"
	pkgtest "github.com/floroz/winbid/pkg/testhelpers"
)

func TestProductRepository_ConditionalWrites(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	owner := testhelpers.SeedUser(t, pool, "owner")
	bidder := testhelpers.SeedUser(t, pool, "bidder")
	repo := database.NewPostgresProductRepository(pool)

	product := &products.Product{
		ID:              uuid.New(),
		Name:            "Camera",
		TotalBidsTarget: 4,
		UnitBidPrice:    decimal.RequireFromString("2.50"),
		OwnerID:         owner,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.CreateProduct(ctx, product))

	got, err := repo.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Camera", got.Name)
	assert.Equal(t, "2.50", got.UnitBidPrice.StringFixed(2))
	assert.False(t, got.IsClosed)

	t.Run("target can change before any bid", func(t *testing.T) {
		got.TotalBidsTarget = 6
		require.NoError(t, repo.UpdateProduct(ctx, got))
	})

	_, err = setupAuctionService(pool).PlaceBid(ctx, placeBid(product.ID, bidder, "2.50"))
	require.NoError(t, err)

	t.Run("target is locked once a bid exists", func(t *testing.T) {
		stale, err := repo.GetProductByID(ctx, product.ID)
		require.NoError(t, err)
		stale.TotalBidsTarget = 2
		err = repo.UpdateProduct(ctx, stale)
		assert.ErrorIs(t, err, products.ErrProductChanged)
	})

	t.Run("other fields may still change", func(t *testing.T) {
		current, err := repo.GetProductByID(ctx, product.ID)
		require.NoError(t, err)
		current.Description = "Mirrorless"
		require.NoError(t, repo.UpdateProduct(ctx, current))
	})

	t.Run("product with bids cannot be deleted", func(t *testing.T) {
		err := repo.DeleteProduct(ctx, product.ID)
		assert.ErrorIs(t, err, products.ErrProductChanged)
	})

	t.Run("missing product", func(t *testing.T) {
		_, err := repo.GetProductByID(ctx, uuid.New())
		assert.ErrorIs(t, err, products.ErrProductNotFound)
		assert.ErrorIs(t, repo.DeleteProduct(ctx, uuid.New()), products.ErrProductNotFound)
	})

	t.Run("open filter", func(t *testing.T) {
		closedID := testhelpers.SeedProduct(t, pool, owner, "Closed", 1, decimal.NewFromInt(1))
		_, err := setupAuctionService(pool).PlaceBid(ctx, placeBid(closedID, bidder, "1"))
		require.NoError(t, err)

		all, err := repo.ListProducts(ctx, false, 50, 0)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		open, err := repo.ListProducts(ctx, true, 50, 0)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, product.ID, open[0].ID)
	})
}

func TestWinnerRepository_Reads(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	owner := testhelpers.SeedUser(t, pool, "owner")
	alice := testhelpers.SeedUser(t, pool, "alice")
	productID := testhelpers.SeedProduct(t, pool, owner, "Guitar", 1, decimal.NewFromInt(1))
	repo := database.NewPostgresWinnerRepository(pool)

	_, err := repo.GetWinnerByProduct(ctx, productID)
	assert.ErrorIs(t, err, winners.ErrWinnerNotFound)

	res, err := setupAuctionService(pool).PlaceBid(ctx, placeBid(productID, alice, "4"))
	require.NoError(t, err)

	byProduct, err := repo.GetWinnerByProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, alice, byProduct.UserID)
	assert.Equal(t, "alice", byProduct.User.Username)
	assert.Equal(t, "Guitar", byProduct.Product.Name)

	byID, err := repo.GetWinnerByID(ctx, res.Winner.ID)
	require.NoError(t, err)
	assert.Equal(t, byProduct.ID, byID.ID)

	mine, err := repo.ListWinnersByUser(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := repo.ListWinners(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUserRepository(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	repo := database.NewPostgresUserRepository(pool)
	txm := pkgdb.NewPostgresTransactionManager(pool, 5*time.Second)

	create := func(u *users.User) error {
		tx, err := txm.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback(ctx) }()
		if err := repo.CreateUser(ctx, tx, u); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	newUser := func(username, email string) *users.User {
		now := time.Now().UTC()
		return &users.User{
			ID:              uuid.New(),
			Username:        username,
			Email:           email,
			Password:        users.HashedPassword("$argon2id$stub"),
			FirstName:       "Jo",
			LastName:        "Doe",
			Role:            auth.RoleUser,
			IsEmailVerified: true,
			EmailVerifiedAt: &now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	jo := newUser("jo_doe", "jo@example.com")
	require.NoError(t, create(jo))

	t.Run("lookups", func(t *testing.T) {
		byEmail, err := repo.GetUserByEmail(ctx, "JO@example.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, jo.ID, byEmail.ID)
		assert.Equal(t, users.SchemeHashed, byEmail.Password.Scheme)
		assert.Empty(t, byEmail.PhoneNumber)

		byName, err := repo.GetUserByUsername(ctx, "jo_doe")
		require.NoError(t, err)
		require.NotNil(t, byName)

		missing, err := repo.GetUserByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := create(newUser("someone_else", "jo@example.com"))
		var dup *users.DuplicateEntryError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, []string{"email"}, dup.Fields)
		assert.ErrorIs(t, err, users.ErrDuplicateEntry)
	})

	t.Run("duplicate username", func(t *testing.T) {
		err := create(newUser("jo_doe", "other@example.com"))
		var dup *users.DuplicateEntryError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, []string{"username"}, dup.Fields)
	})

	t.Run("concurrent registrations of one email", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok, dupes int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := create(newUser("racer_"+string(rune('a'+i)), "race@example.com"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, users.ErrDuplicateEntry):
					dupes++
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, ok)
		assert.Equal(t, 4, dupes)
	})

	t.Run("password upgrade", func(t *testing.T) {
		require.NoError(t, repo.UpdatePassword(ctx, jo.ID, users.HashedPassword("$argon2id$new")))
		got, err := repo.GetUserByID(ctx, jo.ID)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$new", got.Password.Value)

		err = repo.UpdatePassword(ctx, uuid.New(), users.HashedPassword("x"))
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})

	t.Run("profile update", func(t *testing.T) {
		first, phone := "Joanna", "+44 20 7946 0958"
		got, err := repo.UpdateProfile(ctx, jo.ID, users.ProfileUpdate{FirstName: &first, PhoneNumber: &phone})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Joanna", got.FirstName)
		assert.Equal(t, "Doe", got.LastName)
		assert.Equal(t, phone, got.PhoneNumber)
		assert.Equal(t, "jo@example.com", got.Email)

		empty := ""
		got, err = repo.UpdateProfile(ctx, jo.ID, users.ProfileUpdate{PhoneNumber: &empty})
		require.NoError(t, err)
		assert.Empty(t, got.PhoneNumber)
		assert.Equal(t, "Joanna", got.FirstName)

		missing, err := repo.UpdateProfile(ctx, uuid.New(), users.ProfileUpdate{FirstName: &first})
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("list newest first", func(t *testing.T) {
		list, err := repo.ListUsers(ctx, 100, 0)
		require.NoError(t, err)
		require.NotEmpty(t, list)
		for i := 1; i < len(list); i++ {
			assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
		}

		page, err := repo.ListUsers(ctx, 1, 0)
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})

	t.Run("delete", func(t *testing.T) {
		gone := newUser("short_lived", "gone@example.com")
		require.NoError(t, create(gone))
		require.NoError(t, repo.DeleteUser(ctx, gone.ID))

		got, err := repo.GetUserByID(ctx, gone.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.ErrorIs(t, repo.DeleteUser(ctx, gone.ID), users.ErrUserNotFound)
	})

	t.Run("delete refuses owners of products", func(t *testing.T) {
		owner := testhelpers.SeedUser(t, pool, "seller")
		require.NoError(t, database.NewPostgresProductRepository(pool).CreateProduct(ctx, &products.Product{
			ID:              uuid.New(),
			Name:            "Lamp",
			TotalBidsTarget: 2,
			UnitBidPrice:    decimal.RequireFromString("1.00"),
			OwnerID:         owner,
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}))

		assert.ErrorIs(t, repo.DeleteUser(ctx, owner), users.ErrUserInUse)
	})
}

type capturePublisher struct {
	mu       sync.Mutex
	keys     []string
	failNext bool
	failKey  string
}

func (p *capturePublisher) Publish(_ context.Context, _, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return errors.New("broker unavailable")
	}
	if routingKey == p.failKey {
		return errors.New("message rejected")
	}
	p.keys = append(p.keys, routingKey)
	return nil
}

func TestOutboxRelay_PublishesPendingEvents(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	owner := testhelpers.SeedUser(t, pool, "owner")
	alice := testhelpers.SeedUser(t, pool, "alice")
	productID := testhelpers.SeedProduct(t, pool, owner, "Drone", 2, decimal.NewFromInt(1))

	svc := setupAuctionService(pool)
	for i := 0; i < 2; i++ {
		_, err := svc.PlaceBid(ctx, placeBid(productID, alice, "1"))
		require.NoError(t, err)
	}

	pub := &capturePublisher{failNext: true}
	relay := pkgevents.NewOutboxRelay(
		database.NewPostgresOutboxRepository(pool),
		pub,
		pkgdb.NewPostgresTransactionManager(pool, 5*time.Second),
		10,
		time.Second,
		pkgevents.ExchangeAuctionEvents,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	_, err := relay.ProcessBatch(ctx)
	require.Error(t, err)

	var pending, charged int
	var lastError string
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE status = 'pending'`).Scan(&pending))
	assert.Equal(t, 3, pending, "failed batch stays pending")
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(last_error) FROM outbox_events WHERE attempts = 1`).Scan(&charged, &lastError))
	assert.Equal(t, 1, charged, "only the event that failed is charged")
	assert.Equal(t, "broker unavailable", lastError)

	n, err := relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"bid.placed", "bid.placed", "auction.settled"}, pub.keys)

	n, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRelay_ParksPoisonEvent(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	repo := database.NewPostgresOutboxRepository(pool)
	txm := pkgdb.NewPostgresTransactionManager(pool, 5*time.Second)

	save := func(eventType string) *pkgevents.OutboxEvent {
		e, err := pkgevents.NewOutboxEvent(eventType, map[string]any{"n": 1})
		require.NoError(t, err)
		tx, err := txm.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.SaveEvent(ctx, tx, e))
		require.NoError(t, tx.Commit(ctx))
		return e
	}
	poison := save(pkgevents.EventUserRegistered)
	time.Sleep(5 * time.Millisecond)
	save(pkgevents.EventBidPlaced)

	pub := &capturePublisher{failKey: pkgevents.EventUserRegistered}
	relay := pkgevents.NewOutboxRelay(repo, pub, txm, 10, time.Second, pkgevents.ExchangeAuctionEvents,
		slog.New(slog.NewTextHandler(io.Discard, nil)), pkgevents.WithMaxAttempts(2))

	n, err := relay.ProcessBatch(ctx)
	require.Error(t, err)
	assert.Zero(t, n, "the older event blocks the batch")

	n, err = relay.ProcessBatch(ctx)
	require.Error(t, err)
	assert.Zero(t, n)

	var status string
	var attempts int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT status::text, attempts FROM outbox_events WHERE id = $1`, poison.ID).Scan(&status, &attempts))
	assert.Equal(t, "failed", status)
	assert.Equal(t, 2, attempts)

	n, err = relay.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the queue moves once the poison event is parked")
	assert.Equal(t, []string{pkgevents.EventBidPlaced}, pub.keys)
}

func TestOutboxRepository_PurgePublished(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	insert := func(status string, processedAt *time.Time) {
		_, err := pool.Exec(ctx, `
			INSERT INTO outbox_events (id, event_type, payload, status, created_at, processed_at)
			VALUES ($1, 'bid.placed', '\x00', $2::outbox_status, NOW(), $3)`, uuid.New(), status, processedAt)
		require.NoError(t, err)
	}
	old := time.Now().Add(-10 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	insert("published", &old)
	insert("published", &recent)
	insert("failed", &old)
	insert("pending", nil)

	n, err := database.NewPostgresOutboxRepository(pool).PurgePublished(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events`).Scan(&left))
	assert.Equal(t, 3, left)
}

func TestUserStatsRepository_Idempotent(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	alice := testhelpers.SeedUser(t, pool, "alice")
	repo := database.NewPostgresUserStatsRepository(pool)
	txm := pkgdb.NewPostgresTransactionManager(pool, 5*time.Second)
	svc := userstats.NewService(repo, txm, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.GetUserStats(ctx, alice)
	assert.ErrorIs(t, err, userstats.ErrStatsNotFound)

	early := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	late := early.Add(30 * time.Minute)

	first := userstats.BidPlacedEvent{EventID: uuid.New(), UserID: alice, Amount: decimal.RequireFromString("10.00"), PlacedAt: late}
	second := userstats.BidPlacedEvent{EventID: uuid.New(), UserID: alice, Amount: decimal.RequireFromString("5.50"), PlacedAt: early}

	require.NoError(t, svc.ProcessBidPlaced(ctx, first))
	require.NoError(t, svc.ProcessBidPlaced(ctx, first))
	require.NoError(t, svc.ProcessBidPlaced(ctx, second))
	require.NoError(t, svc.ProcessAuctionSettled(ctx, userstats.AuctionSettledEvent{EventID: uuid.New(), UserID: alice}))

	stats, err := svc.GetUserStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalBidsPlaced)
	assert.Equal(t, "15.50", stats.TotalAmountBid.StringFixed(2))
	assert.Equal(t, int64(1), stats.AuctionsWon)
	require.NotNil(t, stats.LastBidAt)
	assert.True(t, late.Equal(*stats.LastBidAt), "out-of-order events keep the latest bid time")
}

func TestContactRepository_CountSince(t *testing.T) {
	testDB := pkgtest.NewTestDatabase(t, migrationsPath)
	defer testDB.Close()
	pool := testDB.Pool
	ctx := context.Background()

	repo := database.NewPostgresContactRepository(pool)
	now := time.Now().UTC()

	for i, at := range []time.Time{now.Add(-2 * time.Hour), now.Add(-30 * time.Minute), now} {
		require.NoError(t, repo.CreateMessage(ctx, &contact.Message{
			ID:        uuid.New(),
			FirstName: "Ann",
			LastName:  "Lee",
			Email:     "ann@example.com",
			Subject:   "Question",
			Message:   "Message number " + string(rune('1'+i)),
			Status:    contact.StatusNew,
			CreatedAt: at,
		}))
	}

	n, err := repo.CountSince(ctx, "ann@example.com", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountSince(ctx, "bob@example.com", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
