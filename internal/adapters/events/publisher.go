package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgevents "github.com/floroz/winbid/pkg/events"
)

const (
	// ExchangeNotifications carries outgoing emails, routed by email.<template>
	ExchangeNotifications = "notifications"

	contentTypeProtobuf = "application/x-protobuf"
)

// RabbitMQPublisher implements pkgevents.EventPublisher
type RabbitMQPublisher struct {
	channel *amqp.Channel
}

var _ pkgevents.EventPublisher = (*RabbitMQPublisher)(nil)

// NewRabbitMQPublisher opens a channel and declares the exchanges it will publish to.
// With no names given it declares the auction events exchange.
func NewRabbitMQPublisher(conn *amqp.Connection, exchanges ...string) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if len(exchanges) == 0 {
		exchanges = []string{pkgevents.ExchangeAuctionEvents}
	}
	for _, name := range exchanges {
		if err := declareExchange(ch, name); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	return &RabbitMQPublisher{channel: ch}, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
}

// Close closes the channel
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}

// Publish publishes a persistent message to the broker
func (p *RabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  contentTypeProtobuf,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
