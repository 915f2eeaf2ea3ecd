package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

const (
	resumeTokenKey  = "coursefeed:resume:%s"
	fingerprintKey  = "coursefeed:fp:%s"
	heartbeatKey    = "coursefeed:heartbeat:watcher"
	fingerprintTTL  = 0 // fingerprints never expire; they are the idempotency record
	readWriteTO     = 30 * time.Second
	connectPingTO   = 3 * time.Second
	heartbeatExpiry = 90 * time.Second
)

// Store keeps the pipeline's own durable state: the last acknowledged
// resume token per watched stream and the last fully processed
// fingerprint per document. The document store itself stays read-only.
type Store struct {
	client *redis.Client
	logger *logging.Logger
}

func New(ctx context.Context, addr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  addr,
		ContextTimeoutEnabled: true,
		ReadTimeout:           readWriteTO,
		WriteTimeout:          readWriteTO,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTO)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis is offline: %w", err)
	}

	s := &Store{client: client, logger: logging.NewLogger("statestore")}
	go s.closeOnDone(ctx)
	return s, nil
}

// NewWithClient exists for tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, logger: logging.NewLogger("statestore")}
}

func (s *Store) closeOnDone(ctx context.Context) {
	<-ctx.Done()
	if err := s.client.Close(); err != nil {
		s.logger.Error("error closing redis client", "error", err)
	}
	s.logger.Info("state store closed")
}

// SaveResumeToken durably records the feed position. Called only after
// the broker confirmed the publish, never before.
func (s *Store) SaveResumeToken(ctx context.Context, stream string, token []byte) error {
	err := s.client.Set(ctx, fmt.Sprintf(resumeTokenKey, stream), token, 0).Err()
	if err != nil {
		return &domain.TransientError{Op: "save resume token", Err: err}
	}
	return nil
}

// LoadResumeToken returns nil without error when no token was ever
// saved (first start).
func (s *Store) LoadResumeToken(ctx context.Context, stream string) ([]byte, error) {
	val, err := s.client.Get(ctx, fmt.Sprintf(resumeTokenKey, stream)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.TransientError{Op: "load resume token", Err: err}
	}
	return val, nil
}

// LastFingerprint returns the fingerprint of the last document version
// that completed the whole pipeline, or "" when the document was never
// processed.
func (s *Store) LastFingerprint(ctx context.Context, documentID string) (string, error) {
	val, err := s.client.Get(ctx, fmt.Sprintf(fingerprintKey, documentID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", &domain.TransientError{Op: "load fingerprint", Err: err}
	}
	return val, nil
}

// SetLastFingerprint is written only after upsert and retire both
// succeeded, so a crash in between re-processes rather than skips.
func (s *Store) SetLastFingerprint(ctx context.Context, documentID, fingerprint string) error {
	err := s.client.Set(ctx, fmt.Sprintf(fingerprintKey, documentID), fingerprint, fingerprintTTL).Err()
	if err != nil {
		return &domain.TransientError{Op: "save fingerprint", Err: err}
	}
	return nil
}

// TouchHeartbeat lets the ops endpoint distinguish a quiet feed from a
// dead watcher.
func (s *Store) TouchHeartbeat(ctx context.Context) error {
	return s.client.Set(ctx, heartbeatKey, time.Now().UTC().Format(time.RFC3339), heartbeatExpiry).Err()
}

func (s *Store) WatcherAlive(ctx context.Context) bool {
	err := s.client.Get(ctx, heartbeatKey).Err()
	return err == nil
}

// Check reports store liveness for the readiness endpoint.
func (s *Store) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
