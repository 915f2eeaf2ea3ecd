package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/entrena-ai/coursefeed/internal/config"
)

// DeclareTopology sets up the exchanges, queues, and bindings. Both
// ends declare it so either process can start first; declarations are
// idempotent.
func DeclareTopology(ch *amqp.Channel, cfg config.Config) error {
	if err := ch.ExchangeDeclare(config.ChangesExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring changes exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(config.DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": config.DeadLetterExchange,
	}); err != nil {
		return fmt.Errorf("declaring queue %s: %w", cfg.QueueName, err)
	}
	if err := ch.QueueBind(cfg.QueueName, "course.#", config.ChangesExchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", cfg.QueueName, err)
	}

	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter queue %s: %w", cfg.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue, "", config.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("binding dead-letter queue %s: %w", cfg.DeadLetterQueue, err)
	}

	return nil
}
