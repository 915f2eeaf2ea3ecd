package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var changeEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coursefeed_change_events_published_total",
	Help: "Change events published to the queue, labelled by operation",
}, []string{"operation"})

var messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coursefeed_messages_processed_total",
	Help: "Messages finished by the worker pool, labelled by outcome",
}, []string{"outcome"})

var stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "coursefeed_stage_duration_seconds",
	Help:    "Time spent per pipeline stage",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
}, []string{"stage"})

var activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "coursefeed_active_workers",
	Help: "Workers currently running",
})

var embeddingsGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "coursefeed_embeddings_generated_total",
	Help: "Vectors written to the index",
})

var deadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coursefeed_dead_letters_total",
	Help: "Messages routed to the dead-letter queue, labelled by stage",
}, []string{"stage"})

var retries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "coursefeed_retries_total",
	Help: "Messages requeued for another attempt",
})

func EventPublished(operation string) {
	changeEventsPublished.WithLabelValues(operation).Inc()
}

func MessageProcessed(outcome string) {
	messagesProcessed.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func WorkerStarted() { activeWorkers.Inc() }
func WorkerStopped() { activeWorkers.Dec() }

func EmbeddingsWritten(n int) {
	embeddingsGenerated.Add(float64(n))
}

func DeadLettered(stage string) {
	deadLetters.WithLabelValues(stage).Inc()
}

func Retried() { retries.Inc() }
