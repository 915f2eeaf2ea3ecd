package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/entrena-ai/coursefeed/internal/chunker"
	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/data/statestore"
	"github.com/entrena-ai/coursefeed/internal/docstore"
	"github.com/entrena-ai/coursefeed/internal/embed"
	"github.com/entrena-ai/coursefeed/internal/normalize"
	"github.com/entrena-ai/coursefeed/internal/pipeline"
	"github.com/entrena-ai/coursefeed/internal/queue"
	"github.com/entrena-ai/coursefeed/internal/server"
	"github.com/entrena-ai/coursefeed/internal/vectordb"
	"github.com/entrena-ai/coursefeed/internal/worker"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

var (
	opsListenAddr     string
	stopWorkerChannel chan bool
	workerWaitGroup   sync.WaitGroup
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("Invalid configuration:", err.Error())
		os.Exit(1)
	}

	logging.Init(cfg.IsProd)
	var logger = logging.NewLogger("main")

	flag.StringVar(&opsListenAddr, "ops-listen-addr", cfg.OpsListenAddr, "ops server listen address")
	flag.Parse()

	stopWorkerChannel = make(chan bool, 1)

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	docs, err := docstore.New(serviceContext, cfg)
	if err != nil {
		logger.Error("Document store is offline. Shutting down.", "err", err)
		return
	}
	state, err := statestore.New(serviceContext, cfg.RedisAddr)
	if err != nil {
		logger.Error("State store is offline. Shutting down.", "err", err)
		return
	}
	index, err := vectordb.NewQdrantIndex(serviceContext, cfg)
	if err != nil {
		logger.Error("Vector index is offline. Shutting down.", "err", err)
		return
	}
	embedder, err := embed.NewService(serviceContext, cfg)
	if err != nil {
		logger.Error("Embedding service failed to initialize. Shutting down.", "err", err)
		return
	}
	publisher, err := queue.NewPublisher(cfg)
	if err != nil {
		logger.Error("Broker is offline. Shutting down.", "err", err)
		return
	}
	consumer, err := queue.NewConsumer(cfg)
	if err != nil {
		logger.Error("Broker is offline. Shutting down.", "err", err)
		return
	}

	var ocr *normalize.OCRClient
	if cfg.OCRServiceURL != "" {
		ocr = normalize.NewOCRClient(cfg.OCRServiceURL)
	}

	enricher := pipeline.New(
		docs,
		normalize.New(cfg, ocr),
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		index,
		state,
	)

	deliveries, err := consumer.Deliveries()
	if err != nil {
		logger.Error("Could not start consuming. Shutting down.", "err", err)
		return
	}

	worker.InitServices(enricher, publisher, cfg)
	worker.StartWorkerPool(deliveries, stopWorkerChannel, &workerWaitGroup)

	go func() {
		// stop intake as soon as shutdown begins; in-flight messages
		// still get acked on the open channel
		<-stopWorkerChannel
		if err := consumer.Cancel(); err != nil {
			logger.Error("Failed to cancel consumer", "err", err)
		}
	}()

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	shutdownParams := server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       stopWorkerChannel,
		Group:            &workerWaitGroup,
		CloseServices:    closeExternalServices,
	}
	go server.ShutDownHandler(shutdownParams)
	go server.CreateServer(opsListenAddr, map[string]server.HealthCheck{
		"broker": consumer.Check,
		"redis":  state.Check,
		"qdrant": index.Check,
		"watcher": func(ctx context.Context) error {
			if !state.WatcherAlive(ctx) {
				return errors.New("no heartbeat from change capture")
			}
			return nil
		},
	})

	go func() {
		// a closed delivery channel drains the whole pool; without a
		// live consumer the process can only idle, so shut down and
		// let the supervisor restart it against a healthy broker
		select {
		case <-worker.BrokerLost():
		case <-stopExecution:
			return
		}
		logger.Error("Broker connection lost. Shutting down.")
		select {
		case gracefulShutdown <- syscall.SIGTERM:
		default:
		}
	}()

	<-stopExecution
	consumer.Close()
	publisher.Close()
	logger.Info("Enricher stopped")
}
