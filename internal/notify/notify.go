package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Template names understood by the mail worker
const (
	TemplateOTP                 = "otp"
	TemplateWelcome             = "welcome"
	TemplateContactConfirmation = "contact_confirmation"
	TemplateContactAdmin        = "contact_admin"
	TemplateAuctionWon          = "auction_won"
)

// Message is one email to render and deliver
type Message struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// Mailer hands a message to whatever delivers it
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher wraps a Mailer with synchronous and fire-and-forget delivery
type Dispatcher struct {
	mailer  Mailer
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(mailer Mailer, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{mailer: mailer, timeout: timeout, logger: logger}
}

// Send delivers msg and returns the mailer's error
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.mailer.Send(ctx, msg)
}

// Dispatch delivers msg in the background. Failures are logged only.
// It detaches from the caller's context so a finished request does not cancel delivery.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("Dropping email after shutdown", "template", msg.Template)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.mailer.Send(ctx, msg); err != nil {
			d.logger.Error("Failed to send email", "template", msg.Template, "error", err)
		}
	}()
}

// Close stops accepting new messages and waits for in-flight ones or ctx
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("email dispatcher did not drain"), ctx.Err())
	}
}

// LogMailer writes messages to the log instead of delivering them
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Email", "to", msg.To, "template", msg.Template, "data", msg.Data)
	return nil
}
