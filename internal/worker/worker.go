package worker

import (
	"context"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/internal/metrics"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// Processor runs one change event through the enrichment stages.
type Processor interface {
	Process(ctx context.Context, ev domain.ChangeEvent) error
}

// RetrySink is where failed messages go: back on the queue with a
// bumped attempt count, or to the dead-letter exchange.
type RetrySink interface {
	PublishRetry(ctx context.Context, ev domain.ChangeEvent, attempt int) error
	PublishDeadLetter(ctx context.Context, rec domain.DeadLetterRecord) error
}

var (
	_pipeline          Processor
	_sink              RetrySink
	deliveryChannel    <-chan amqp.Delivery
	stopWorkerChannel  chan bool
	workerWaitGroup    *sync.WaitGroup
	currentWorkerCount int64
	workerCount        int
	retryLimit         int
	retryBaseBackoff   = config.RetryBaseBackoff
	maxBackoff         = config.MaxBackoff
	brokerLost         chan struct{}
	brokerLostOnce     *sync.Once
	logger             *logging.Logger
)

func InitServices(pipeline Processor, sink RetrySink, cfg config.Config) {
	_pipeline = pipeline
	_sink = sink
	workerCount = cfg.WorkerCount
	retryLimit = cfg.RetryLimit
	brokerLost = make(chan struct{})
	brokerLostOnce = &sync.Once{}
	logger = logging.NewLogger("workerpool")
}

// BrokerLost closes when a worker finds the delivery channel closed,
// which means the broker connection dropped and the pool can never
// receive another message. The process must shut down and restart
// rather than idle.
func BrokerLost() <-chan struct{} {
	return brokerLost
}

func signalBrokerLost() {
	brokerLostOnce.Do(func() { close(brokerLost) })
}

// StartWorkerPool launches the fixed pool. Each worker pulls from the
// shared delivery channel until the stop channel closes; the broker's
// prefetch bound keeps at most Prefetch() messages in flight.
func StartWorkerPool(deliveries <-chan amqp.Delivery, stopWorkerChan chan bool, waitGroup *sync.WaitGroup) {
	deliveryChannel = deliveries
	stopWorkerChannel = stopWorkerChan
	workerWaitGroup = waitGroup
	logger.Info("Starting worker pool", "workers", workerCount)
	for i := 0; i < workerCount; i++ {
		createWorker()
	}
}

func createWorker() {
	workerWaitGroup.Add(1)
	go workerLoop()
	atomic.AddInt64(&currentWorkerCount, 1)
	metrics.WorkerStarted()
}

func workerLoop() {
	for {
		select {
		case d, ok := <-deliveryChannel:
			if !ok {
				signalBrokerLost()
				removeWorker("delivery channel closed")
				return
			}
			executeMessage(d)

		case <-stopWorkerChannel:
			removeWorker("stop signal received")
			return
		}
	}
}

func removeWorker(reason string) {
	workerWaitGroup.Done()
	atomic.AddInt64(&currentWorkerCount, -1)
	logger.Info("Removed worker", "reason", reason, "workerCount", atomic.LoadInt64(&currentWorkerCount))
	metrics.WorkerStopped()
}
