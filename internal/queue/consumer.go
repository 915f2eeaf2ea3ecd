package queue

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// Consumer drains the changes queue with bounded prefetch so the pool
// never holds more unacked messages than it can work on.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *logging.Logger
}

func NewConsumer(cfg config.Config) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return nil, &domain.TransientError{Op: "broker dial", Err: err}
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, &domain.TransientError{Op: "broker channel", Err: err}
	}
	if err := DeclareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch(), 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting prefetch: %w", err)
	}

	return &Consumer{
		conn:   conn,
		ch:     ch,
		queue:  cfg.QueueName,
		logger: logging.NewLogger("consumer"),
	}, nil
}

// Deliveries starts consumption with explicit acks. The channel closes
// when the connection drops or Close is called.
func (c *Consumer) Deliveries() (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(c.queue, "coursefeed-enricher", false, false, false, false, nil)
	if err != nil {
		return nil, &domain.TransientError{Op: "consume", Err: err}
	}
	c.logger.Info("consuming", "queue", c.queue)
	return deliveries, nil
}

// Check reports broker liveness for the readiness endpoint. The
// consumer does not redial; a dropped connection closes the delivery
// channel and the process restarts.
func (c *Consumer) Check(ctx context.Context) error {
	if c.conn.IsClosed() {
		return errors.New("broker connection is down")
	}
	return nil
}

// Cancel stops new deliveries while leaving the channel open for acks
// of in-flight messages.
func (c *Consumer) Cancel() error {
	return c.ch.Cancel("coursefeed-enricher", false)
}

func (c *Consumer) Close() {
	if err := c.conn.Close(); err != nil {
		c.logger.Error("error closing broker connection", "error", err)
	}
}
