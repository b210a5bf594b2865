package events

import (
	"context"
	"fmt"

	"github.com/floroz/winbid/internal/notify"
	pkgevents "github.com/floroz/winbid/pkg/events"
)

// AMQPMailer hands emails to the mail worker over the notifications exchange
type AMQPMailer struct {
	publisher pkgevents.EventPublisher
}

var _ notify.Mailer = (*AMQPMailer)(nil)

func NewAMQPMailer(publisher pkgevents.EventPublisher) *AMQPMailer {
	return &AMQPMailer{publisher: publisher}
}

func (m *AMQPMailer) Send(ctx context.Context, msg notify.Message) error {
	body, err := EncodeEmail(msg)
	if err != nil {
		return err
	}
	if err := m.publisher.Publish(ctx, ExchangeNotifications, EmailRoutingKey(msg.Template), body); err != nil {
		return fmt.Errorf("failed to publish %s email: %w", msg.Template, err)
	}
	return nil
}

func EmailRoutingKey(template string) string {
	return "email." + template
}

// EncodeEmail writes msg in the same protobuf Struct envelope as auction events
func EncodeEmail(msg notify.Message) ([]byte, error) {
	data := make(map[string]any, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = v
	}
	body, err := pkgevents.EncodePayload(map[string]any{
		"to":       msg.To,
		"template": msg.Template,
		"data":     data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s email: %w", msg.Template, err)
	}
	return body, nil
}
