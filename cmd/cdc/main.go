package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/data/statestore"
	"github.com/entrena-ai/coursefeed/internal/docstore"
	"github.com/entrena-ai/coursefeed/internal/queue"
	"github.com/entrena-ai/coursefeed/internal/server"
	"github.com/entrena-ai/coursefeed/internal/watcher"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

var (
	opsListenAddr   string
	workerWaitGroup sync.WaitGroup
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
	publisher, err := queue.NewPublisher(cfg)
	if err != nil {
		logger.Error("Broker is offline. Shutting down.", "err", err)
		return
	}

	feed := watcher.New(docs.Database(), cfg.WatchCollections, publisher, state)

	watcherDone := make(chan error, 1)
	watcherCtx, stopWatcher := context.WithCancel(serviceContext)
	workerWaitGroup.Add(1)
	go func() {
		defer workerWaitGroup.Done()
		watcherDone <- feed.Run(watcherCtx)
	}()

	stopWorkerChannel := make(chan bool, 1)
	go func() {
		// the ops shutdown path closes this channel; translate it into
		// a context cancel for the watcher
		<-stopWorkerChannel
		stopWatcher()
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
		"broker": publisher.Check,
		"redis":  state.Check,
		"watcher": func(ctx context.Context) error {
			if !state.WatcherAlive(ctx) {
				return errors.New("no heartbeat")
			}
			return nil
		},
	})

	select {
	case err := <-watcherDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Watcher stopped", "err", err)
			os.Exit(1)
		}
	case <-stopExecution:
	}
	publisher.Close()
	logger.Info("Change capture stopped")
}
