package queue

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/entrena-ai/coursefeed/internal/domain"
)

func TestRoutingKey(t *testing.T) {
	if got := RoutingKey("42"); got != "course.42" {
		t.Errorf("RoutingKey(42) = %q", got)
	}
	if got := RoutingKey(""); got != "course.general" {
		t.Errorf("RoutingKey(\"\") = %q", got)
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	ev := domain.ChangeEvent{
		DocumentID: "doc-9",
		CourseID:   "42",
		Operation:  domain.OpUpdate,
		ObservedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}

	body, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != ev {
		t.Errorf("round trip mismatch: %+v vs %+v", got, ev)
	}
}

func TestDecodeEvent_Rejects(t *testing.T) {
	if _, err := DecodeEvent([]byte("{not json")); err == nil {
		t.Error("expected error for malformed json")
	}
	if _, err := DecodeEvent([]byte(`{"courseId":"1"}`)); err == nil {
		t.Error("expected error for missing document id")
	}
}

func TestAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 0},
		{"fresh publish", amqp.Table{AttemptHeader: int32(0)}, 0},
		{"second retry", amqp.Table{AttemptHeader: int32(2)}, 2},
		{"int64 encoding", amqp.Table{AttemptHeader: int64(3)}, 3},
		{"garbage header", amqp.Table{AttemptHeader: "x"}, 0},
	}

	for _, tt := range tests {
		d := amqp.Delivery{Headers: tt.headers}
		if got := Attempt(d); got != tt.want {
			t.Errorf("%s: Attempt() = %d; want %d", tt.name, got, tt.want)
		}
	}
}
