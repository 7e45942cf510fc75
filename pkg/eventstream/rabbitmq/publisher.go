// Package rabbitmq publishes eventstream events to a RabbitMQ topic exchange
// with publisher confirms.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/logger"
)

// Config holds configuration for the RabbitMQ publisher.
type Config struct {
	URL      string
	Exchange string

	// DialAttempts bounds connection attempts. Defaults to 5.
	DialAttempts int

	// DialDelay is the initial backoff between attempts. Defaults to 500ms.
	DialDelay time.Duration

	Logger *slog.Logger
}

const maxDialDelay = 10 * time.Second

// Publisher publishes events with routing key equal to the event type.
type Publisher struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp091.Connection
}

// NewPublisher connects to RabbitMQ and declares the exchange.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "mnemo.events"
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 5
	}
	if cfg.DialDelay <= 0 {
		cfg.DialDelay = 500 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	p := &Publisher{cfg: cfg, logger: log}
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %q: %w", cfg.Exchange, err)
	}

	return p, nil
}

// dial connects with capped exponential backoff and honors ctx cancellation.
func (p *Publisher) dial(ctx context.Context) (*amqp091.Connection, error) {
	var lastErr error
	delay := p.cfg.DialDelay

	for i := 1; i <= p.cfg.DialAttempts; i++ {
		conn, err := amqp091.Dial(p.cfg.URL)
		if err == nil {
			if i > 1 {
				p.logger.Info("rabbitmq connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err

		if i == p.cfg.DialAttempts {
			break
		}

		p.logger.Warn("rabbitmq dial failed",
			"attempt", i,
			"sleep", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDialDelay {
			delay = maxDialDelay
		}
	}

	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", p.cfg.DialAttempts, lastErr)
}

// connection returns a live connection, redialing once if the broker dropped it.
func (p *Publisher) connection(ctx context.Context) (*amqp091.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

// Publish sends the event and waits for the broker confirm.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enabling confirms: %w", err)
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, event.EventType, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.EmittedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked event %s", event.EventID)
	}
	return nil
}

// Close closes the underlying connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
