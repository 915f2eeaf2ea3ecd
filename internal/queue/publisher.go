package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// Publisher puts messages on the broker in confirm mode: Publish does
// not return success until the broker acknowledged the message. The
// watcher relies on that to only advance its resume token past events
// that are actually queued. When the connection drops, the next publish
// redials the broker and redeclares the topology before sending.
type Publisher struct {
	cfg    config.Config
	logger *logging.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(cfg config.Config) (*Publisher, error) {
	p := &Publisher{
		cfg:    cfg,
		logger: logging.NewLogger("publisher"),
	}
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

// channel returns a live confirm-mode channel, redialing the broker
// when the previous connection dropped.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	if p.conn != nil {
		p.logger.Warn("Broker connection lost. Redialing.")
	}

	conn, err := amqp.Dial(p.cfg.RabbitURL)
	if err != nil {
		return nil, &domain.TransientError{Op: "broker dial", Err: err}
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, &domain.TransientError{Op: "broker channel", Err: err}
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling publisher confirms: %w", err)
	}
	if err := DeclareTopology(ch, p.cfg); err != nil {
		conn.Close()
		return nil, err
	}

	p.conn, p.ch = conn, ch
	return ch, nil
}

// Check reports broker liveness for the readiness endpoint.
func (p *Publisher) Check(ctx context.Context) error {
	p.mu.Lock()
	healthy := p.conn != nil && !p.conn.IsClosed()
	p.mu.Unlock()
	if !healthy {
		return errors.New("broker connection is down")
	}
	return nil
}

// PublishChange routes one change event by course and waits for the
// broker confirm.
func (p *Publisher) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	return p.publishEvent(ctx, ev, 0)
}

// PublishRetry requeues a failed message with its attempt count bumped.
func (p *Publisher) PublishRetry(ctx context.Context, ev domain.ChangeEvent, attempt int) error {
	return p.publishEvent(ctx, ev, attempt)
}

func (p *Publisher) publishEvent(ctx context.Context, ev domain.ChangeEvent, attempt int) error {
	body, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	return p.publish(ctx, config.ChangesExchange, RoutingKey(ev.CourseID), body, amqp.Table{
		AttemptHeader: int32(attempt),
	})
}

// PublishDeadLetter writes the diagnostic record onto the side queue.
func (p *Publisher) PublishDeadLetter(ctx context.Context, rec domain.DeadLetterRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding dead-letter record: %w", err)
	}
	return p.publish(ctx, config.DeadLetterExchange, "", body, nil)
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, config.PublishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return &domain.TransientError{Op: "publish", Err: err}
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return &domain.TransientError{Op: "publish confirm", Err: err}
	}
	if !acked {
		return &domain.TransientError{Op: "publish confirm", Err: fmt.Errorf("broker nacked delivery %d", confirm.DeliveryTag)}
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Error("error closing broker connection", "error", err)
	}
}
