package queue

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/entrena-ai/coursefeed/internal/domain"
)

// AttemptHeader carries the delivery attempt count across republishes;
// broker-side nack redelivery would lose it.
const AttemptHeader = "x-attempt"

// RoutingKey partitions messages by course so per-course backlogs can
// be inspected and throttled on the broker.
func RoutingKey(courseID string) string {
	if courseID == "" {
		return "course.general"
	}
	return "course." + courseID
}

func EncodeEvent(ev domain.ChangeEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func DecodeEvent(body []byte) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("malformed change event: %w", err)
	}
	if ev.DocumentID == "" {
		return domain.ChangeEvent{}, fmt.Errorf("change event missing document id")
	}
	return ev, nil
}

// Attempt reads the attempt count from delivery headers; a message
// published by the watcher has none and counts as attempt 0.
func Attempt(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
