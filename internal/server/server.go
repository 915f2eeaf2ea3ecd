package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

var (
	serverMu sync.Mutex
	server   *http.Server

	loggerOnce sync.Once
	_logger    *logging.Logger
)

func opsLogger() *logging.Logger {
	loggerOnce.Do(func() {
		_logger = logging.NewLogger("opsserver")
	})
	return _logger
}

func currentServer() *http.Server {
	serverMu.Lock()
	defer serverMu.Unlock()
	return server
}

// HealthCheck reports whether one dependency is usable right now.
type HealthCheck func(ctx context.Context) error

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	WorkerStop       chan bool
	Group            *sync.WaitGroup
	CloseServices    context.CancelFunc
}

// CreateServer runs the ops listener: liveness, readiness and the
// Prometheus scrape endpoint. Blocks until the server is shut down.
func CreateServer(listenAddr string, checks map[string]HealthCheck) {
	logger := opsLogger()

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyHandler(checks))

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	serverMu.Lock()
	server = srv
	serverMu.Unlock()

	logger.Info("Ops server is listening at", "address", listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Ops server crashed", "err", err, "addr", listenAddr)
	}
}

func readyHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(req.Context()); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(results)
	}
}

// ShutDownHandler drains on SIGINT/SIGTERM: stop accepting HTTP, stop
// the workers, wait for in-flight messages, then close clients.
func ShutDownHandler(shutdownParams ShutdownParams) {
	logger := opsLogger()
	sig := <-shutdownParams.GracefulShutdown
	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		// a signal can land before CreateServer published the listener
		if srv := currentServer(); srv != nil {
			srv.SetKeepAlivesEnabled(false)
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Could not shutdown gracefully", "err", err)
			}
		}

		close(shutdownParams.WorkerStop)
		shutdownParams.Group.Wait()
		shutdownParams.CloseServices()
		close(shutdownParams.StopExecution)
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Shutdown complete")
	case <-ctx.Done():
		logger.Info("Shutdown deadline exceeded, exiting")
		os.Exit(1)
	}
}
