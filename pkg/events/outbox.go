package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/winbid/pkg/database"
)

// OutboxStatus defines the status of an event in the outbox
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusPublished  OutboxStatus = "published"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Routing keys published on the auction exchange
const (
	ExchangeAuctionEvents = "auction.events"

	EventBidPlaced      = "bid.placed"
	EventAuctionSettled = "auction.settled"
	EventUserRegistered = "user.registered"
)

// OutboxEvent represents a generic event to be stored in the database
type OutboxEvent struct {
	ID          uuid.UUID    `db:"id"`
	EventType   string       `db:"event_type"`
	Payload     []byte       `db:"payload"`
	Status      OutboxStatus `db:"status"`
	Attempts    int          `db:"attempts"`
	LastError   string       `db:"last_error"`
	CreatedAt   time.Time    `db:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at"`
}

// PayloadEventID is the payload field carrying the outbox event ID,
// used by consumers for idempotency
const PayloadEventID = "eventId"

// NewOutboxEvent encodes fields as a protobuf payload and wraps it in a pending event
func NewOutboxEvent(eventType string, fields map[string]any) (*OutboxEvent, error) {
	id := uuid.New()
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body[PayloadEventID] = id.String()

	payload, err := EncodePayload(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:        id,
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: time.Now(),
	}, nil
}

// OutboxWriter stores events in the caller's transaction
type OutboxWriter interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error
}

// OutboxRepository is the relay's view of the outbox table
type OutboxRepository interface {
	GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error
	// RecordFailure returns OutboxStatusFailed once the event has used maxAttempts
	RecordFailure(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, maxAttempts int) (OutboxStatus, error)
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}

// EventPublisher defines the interface for publishing events to a broker
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

const (
	DefaultMaxAttempts = 10
	purgeEvery         = time.Hour
)

// OutboxRelay polls the database for pending events and publishes them
type OutboxRelay struct {
	outboxRepo  OutboxRepository
	publisher   EventPublisher
	txManager   database.TransactionManager
	batchSize   int
	interval    time.Duration
	exchange    string
	maxAttempts int
	retention   time.Duration
	lastPurge   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

type RelayOption func(*OutboxRelay)

// WithMaxAttempts sets how many failed publishes park an event as failed
func WithMaxAttempts(n int) RelayOption {
	return func(r *OutboxRelay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithRetention deletes published events older than d, checked hourly. Zero keeps them.
func WithRetention(d time.Duration) RelayOption {
	return func(r *OutboxRelay) { r.retention = d }
}

// WithRelayClock replaces time.Now, for tests
func WithRelayClock(now func() time.Time) RelayOption {
	return func(r *OutboxRelay) { r.now = now }
}

func NewOutboxRelay(
	outboxRepo OutboxRepository,
	publisher EventPublisher,
	txManager database.TransactionManager,
	batchSize int,
	interval time.Duration,
	exchange string,
	logger *slog.Logger,
	opts ...RelayOption,
) *OutboxRelay {
	r := &OutboxRelay{
		outboxRepo:  outboxRepo,
		publisher:   publisher,
		txManager:   txManager,
		batchSize:   batchSize,
		interval:    interval,
		exchange:    exchange,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the polling loop and returns nil once ctx is cancelled
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessBatch(ctx); err != nil {
			r.logger.Error("Error processing outbox batch", "error", err)
		}
		r.maybePurge(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch publishes one batch of pending events in order and returns how
// many were published. The first publish failure stops the batch: that event is
// charged an attempt and the rest wait for the next tick. Events published
// before the failure are still committed.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.txManager.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	pending, err := r.outboxRepo.GetPendingEvents(ctx, tx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(pending))
	var publishErr error
	for _, event := range pending {
		// the routing key is the event type
		err := r.publisher.Publish(ctx, r.exchange, event.EventType, event.Payload)
		if err == nil {
			published = append(published, event.ID)
			continue
		}

		publishErr = fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		status, recErr := r.outboxRepo.RecordFailure(ctx, tx, event.ID, err.Error(), r.maxAttempts)
		if recErr != nil {
			return 0, errors.Join(publishErr, recErr)
		}
		if status == OutboxStatusFailed {
			r.logger.Error("Outbox event parked after repeated failures",
				"event_id", event.ID, "event_type", event.EventType, "attempts", event.Attempts+1, "error", err)
		}
		break
	}

	if err := r.outboxRepo.MarkPublished(ctx, tx, published); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
	}

	if len(published) > 0 {
		r.logger.Info("Published outbox events", "count", len(published))
	}
	return len(published), publishErr
}

func (r *OutboxRelay) maybePurge(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	now := r.now()
	if !r.lastPurge.IsZero() && now.Sub(r.lastPurge) < purgeEvery {
		return
	}
	r.lastPurge = now

	n, err := r.outboxRepo.PurgePublished(ctx, now.Add(-r.retention))
	if err != nil {
		r.logger.Warn("Outbox purge failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("Purged published outbox events", "count", n)
	}
}
