package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/floroz/winbid/internal/domain/userstats"
	pkgevents "github.com/floroz/winbid/pkg/events"
)

const WorkerQueue = "winbid_worker"

// StatsProcessor applies auction events to the user stats read model
type StatsProcessor interface {
	ProcessBidPlaced(ctx context.Context, event userstats.BidPlacedEvent) error
	ProcessAuctionSettled(ctx context.Context, event userstats.AuctionSettledEvent) error
}

// errMalformed marks messages that will never succeed and must not be requeued
var errMalformed = errors.New("malformed event")

// EventConsumer consumes auction events and updates user statistics
type EventConsumer struct {
	conn    *amqp.Connection
	service StatsProcessor
	logger  *slog.Logger
}

func NewEventConsumer(conn *amqp.Connection, service StatsProcessor, logger *slog.Logger) *EventConsumer {
	return &EventConsumer{
		conn:    conn,
		service: service,
		logger:  logger,
	}
}

// Run starts the consumer loop and returns nil once ctx is cancelled
func (c *EventConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := c.setupRabbitMQ(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		WorkerQueue, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for messages...", "queue", WorkerQueue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery and acks or nacks it.
// Malformed messages are dropped, processing failures are requeued.
func (c *EventConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	err := c.dispatch(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("Failed to Ack message", "error", ackErr)
		}
	case errors.Is(err, errMalformed):
		c.logger.Error("Dropping malformed event", "routing_key", d.RoutingKey, "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to Nack message", "error", nackErr)
		}
	default:
		c.logger.Error("Failed to process event", "routing_key", d.RoutingKey, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to Nack message (requeue)", "error", nackErr)
		}
	}
}

func (c *EventConsumer) dispatch(ctx context.Context, routingKey string, body []byte) error {
	payload, err := pkgevents.DecodePayload(body)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	switch routingKey {
	case pkgevents.EventBidPlaced:
		event, err := decodeBidPlaced(payload)
		if err != nil {
			return err
		}
		return c.service.ProcessBidPlaced(ctx, event)
	case pkgevents.EventAuctionSettled:
		event, err := decodeAuctionSettled(payload)
		if err != nil {
			return err
		}
		return c.service.ProcessAuctionSettled(ctx, event)
	default:
		return fmt.Errorf("%w: unexpected routing key %q", errMalformed, routingKey)
	}
}

// fieldReader collects the first decode error so callers check once
type fieldReader struct {
	p   *pkgevents.Payload
	err error
}

func (r *fieldReader) uuid(key string) uuid.UUID {
	if r.err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(r.p.String(key))
	if err != nil {
		r.err = fmt.Errorf("%w: field %s: %v", errMalformed, key, err)
	}
	return id
}

func (r *fieldReader) decimal(key string) decimal.Decimal {
	if r.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.p.String(key))
	if err != nil {
		r.err = fmt.Errorf("%w: field %s: %v", errMalformed, key, err)
	}
	return d
}

func decodeBidPlaced(p *pkgevents.Payload) (userstats.BidPlacedEvent, error) {
	r := &fieldReader{p: p}
	event := userstats.BidPlacedEvent{
		EventID:   r.uuid(pkgevents.PayloadEventID),
		BidID:     r.uuid("bidId"),
		ProductID: r.uuid("productId"),
		UserID:    r.uuid("userId"),
		Amount:    r.decimal("amount"),
	}
	if r.err != nil {
		return event, r.err
	}
	placedAt, err := p.Time("placedAt")
	if err != nil {
		return event, fmt.Errorf("%w: %v", errMalformed, err)
	}
	event.PlacedAt = placedAt
	return event, nil
}

func decodeAuctionSettled(p *pkgevents.Payload) (userstats.AuctionSettledEvent, error) {
	r := &fieldReader{p: p}
	event := userstats.AuctionSettledEvent{
		EventID:   r.uuid(pkgevents.PayloadEventID),
		ProductID: r.uuid("productId"),
		WinnerID:  r.uuid("winnerId"),
		UserID:    r.uuid("userId"),
		BidID:     r.uuid("bidId"),
		Amount:    r.decimal("amount"),
	}
	if r.err != nil {
		return event, r.err
	}
	wonAt, err := p.Time("wonAt")
	if err != nil {
		return event, fmt.Errorf("%w: %v", errMalformed, err)
	}
	event.WonAt = wonAt
	return event, nil
}

func (c *EventConsumer) setupRabbitMQ(ch *amqp.Channel) error {
	if err := declareExchange(ch, pkgevents.ExchangeAuctionEvents); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		WorkerQueue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return err
	}

	for _, key := range []string{pkgevents.EventBidPlaced, pkgevents.EventAuctionSettled} {
		if err := ch.QueueBind(q.Name, key, pkgevents.ExchangeAuctionEvents, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}
