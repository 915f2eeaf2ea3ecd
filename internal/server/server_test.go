package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestReadyHandler_AllChecksPass(t *testing.T) {
	checks := map[string]HealthCheck{
		"broker": func(ctx context.Context) error { return nil },
		"redis":  func(ctx context.Context) error { return nil },
	}

	rec := httptest.NewRecorder()
	readyHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["broker"] != "ok" || body["redis"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestReadyHandler_FailingCheckReports503(t *testing.T) {
	checks := map[string]HealthCheck{
		"broker": func(ctx context.Context) error { return nil },
		"redis":  func(ctx context.Context) error { return errors.New("connection refused") },
	}

	rec := httptest.NewRecorder()
	readyHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d; want 503", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["redis"] != "connection refused" {
		t.Errorf("failing check must report its error, got %v", body)
	}
}

func TestShutDownHandler_SignalBeforeServerStarts(t *testing.T) {
	gracefulShutdown := make(chan os.Signal, 1)
	stopExecution := make(chan bool)
	workerStop := make(chan bool)
	var group sync.WaitGroup

	go ShutDownHandler(ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       workerStop,
		Group:            &group,
		CloseServices:    func() {},
	})
	gracefulShutdown <- syscall.SIGTERM

	select {
	case <-stopExecution:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown must complete even when the ops server never started")
	}
	select {
	case <-workerStop:
	default:
		t.Error("worker stop channel must be closed")
	}
}
