package worker

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/internal/metrics"
	"github.com/entrena-ai/coursefeed/internal/queue"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// executeMessage runs one delivery end to end and settles it exactly
// once: ack on success, ack after a dead-letter, ack after a
// republished retry, nack with requeue only when the broker refused
// the republish.
func executeMessage(d amqp.Delivery) {
	start := time.Now()
	log := logger.WithTrace(uuid.NewString())

	ev, err := queue.DecodeEvent(d.Body)
	if err != nil {
		// an undecodable payload can never succeed, straight to the DLX
		log.Error("Discarding undecodable message", "err", err)
		settleDeadLetter(d, log, domain.ChangeEvent{}, err, queue.Attempt(d))
		return
	}
	log = log.With("documentId", ev.DocumentID, "courseId", ev.CourseID)

	ctx, cancel := context.WithTimeout(context.Background(), config.StageTimeout)
	defer cancel()

	err = _pipeline.Process(ctx, ev)
	if err == nil {
		ackOrLog(d, log)
		metrics.MessageProcessed("success")
		log.Info("Message processed", "elapsed", time.Since(start))
		return
	}

	attempt := queue.Attempt(d)
	if !domain.Retryable(err) || attempt >= retryLimit {
		log.Error("Message failed permanently", "stage", domain.FailureStage(err), "attempts", attempt, "err", err)
		settleDeadLetter(d, log, ev, err, attempt)
		return
	}

	wait := retryBackoff(attempt)
	log.Warn("Stage failed, scheduling retry", "stage", domain.FailureStage(err), "attempt", attempt+1, "backoff", wait, "err", err)
	time.Sleep(wait)

	pubCtx, pubCancel := context.WithTimeout(context.Background(), config.PublishTimeout)
	defer pubCancel()
	if perr := _sink.PublishRetry(pubCtx, ev, attempt+1); perr != nil {
		// broker refused the republish, hand the original back instead
		log.Error("Failed to republish for retry", "err", perr)
		nackOrLog(d, log)
		metrics.MessageProcessed("requeued")
		return
	}
	ackOrLog(d, log)
	metrics.Retried()
	metrics.MessageProcessed("retry")
}

// settleDeadLetter writes the dead-letter record and only then acks
// the original. If the record cannot be published the original goes
// back on the queue so the failure is never silently dropped.
func settleDeadLetter(d amqp.Delivery, log *logging.Logger, ev domain.ChangeEvent, cause error, attempts int) {
	host, _ := os.Hostname()
	rec := domain.DeadLetterRecord{
		Event:      ev,
		Reason:     cause.Error(),
		Stage:      domain.FailureStage(cause),
		Attempts:   attempts,
		FailedAt:   time.Now().UTC(),
		WorkerHost: host,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.PublishTimeout)
	defer cancel()
	if err := _sink.PublishDeadLetter(ctx, rec); err != nil {
		log.Error("Failed to publish dead letter record", "err", err)
		nackOrLog(d, log)
		metrics.MessageProcessed("requeued")
		return
	}
	ackOrLog(d, log)
	metrics.DeadLettered(string(rec.Stage))
	metrics.MessageProcessed("deadletter")
}

func retryBackoff(attempt int) time.Duration {
	if attempt > 8 {
		return maxBackoff
	}
	wait := retryBaseBackoff << attempt
	if wait > maxBackoff {
		return maxBackoff
	}
	return wait
}

func ackOrLog(d amqp.Delivery, log *logging.Logger) {
	if err := d.Ack(false); err != nil {
		log.Error("Failed to ack delivery", "err", err)
	}
}

func nackOrLog(d amqp.Delivery, log *logging.Logger) {
	if err := d.Nack(false, true); err != nil {
		log.Error("Failed to nack delivery", "err", err)
	}
}
