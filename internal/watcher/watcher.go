package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/internal/metrics"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

const (
	reconnectBackoff  = 5 * time.Second
	heartbeatInterval = 30 * time.Second
	pollInterval      = 5 * time.Second
)

// ErrHistoryLost means the stored resume token points before the
// oldest change the store still remembers. Resuming from an unknown
// point risks silently missing changes, so the watcher refuses to
// guess; an operator has to trigger a full resync.
var ErrHistoryLost = errors.New("change feed history lost, full resync required")

// ChangePublisher is the confirm-acknowledged queue side of the
// watcher.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

// TokenStore persists the feed position between restarts.
type TokenStore interface {
	LoadResumeToken(ctx context.Context, stream string) ([]byte, error)
	SaveResumeToken(ctx context.Context, stream string, token []byte) error
	TouchHeartbeat(ctx context.Context) error
}

// Watcher tails the document store's change feed on the allow-listed
// collections and emits one ChangeEvent per insert/update/replace.
// It never mutates the document store.
type Watcher struct {
	db          *mongo.Database
	collections []string
	streamKey   string
	publisher   ChangePublisher
	state       TokenStore
	logger      *logging.Logger
}

func New(db *mongo.Database, collections []string, publisher ChangePublisher, state TokenStore) *Watcher {
	return &Watcher{
		db:          db,
		collections: collections,
		streamKey:   db.Name(),
		publisher:   publisher,
		state:       state,
		logger:      logging.NewLogger("watcher"),
	}
}

// Run blocks until ctx is cancelled or the resume token is
// invalidated. Transient feed errors reconnect and resume from the
// last durably acknowledged token.
func (w *Watcher) Run(ctx context.Context) error {
	go w.heartbeatLoop(ctx)

	token, err := w.state.LoadResumeToken(ctx, w.streamKey)
	if err != nil {
		return err
	}
	if token != nil {
		w.logger.Info("resuming change feed from stored token", "stream", w.streamKey)
	}

	for {
		err := w.watch(ctx, &token)
		if ctx.Err() != nil {
			w.logger.Info("watcher stopped")
			return nil
		}
		if isHistoryLost(err) {
			w.logger.Error("resume token invalidated", "error", err)
			return fmt.Errorf("%w: %v", ErrHistoryLost, err)
		}
		if isChangeStreamUnsupported(err) {
			return w.pollLoop(ctx)
		}
		w.logger.Warn("change feed interrupted, reconnecting", "error", err)
		select {
		case <-time.After(reconnectBackoff):
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) watch(ctx context.Context, token *[]byte) error {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{
		{Key: "operationType", Value: bson.D{{Key: "$in", Value: operationNames()}}},
		{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: w.collections}}},
	}}}}

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if *token != nil {
		opts.SetResumeAfter(bson.Raw(*token))
	}

	stream, err := w.db.Watch(ctx, pipeline, opts)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())
	w.logger.Info("watching collections", "collections", w.collections)

	for stream.Next(ctx) {
		var change rawChange
		if err := stream.Decode(&change); err != nil {
			w.logger.Error("undecodable change document, skipping", "error", err)
			continue
		}

		ev, ok := ToChangeEvent(change, time.Now().UTC())
		if ok {
			// the token only advances past events the broker confirmed
			if err := w.publisher.PublishChange(ctx, ev); err != nil {
				return err
			}
			metrics.EventPublished(string(ev.Operation))
			w.logger.Debug("change published",
				"operation", ev.Operation, "documentId", ev.DocumentID, "courseId", ev.CourseID)
		}

		next := stream.ResumeToken()
		if err := w.state.SaveResumeToken(ctx, w.streamKey, next); err != nil {
			return err
		}
		*token = next
	}

	return stream.Err()
}

func (w *Watcher) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.state.TouchHeartbeat(ctx); err != nil {
				w.logger.Debug("heartbeat failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func operationNames() bson.A {
	names := bson.A{}
	for _, op := range domain.WatchedOperations {
		names = append(names, string(op))
	}
	return names
}

// codes the server uses when the feed can no longer be resumed from
// the stored token
var historyLostCodes = []int{260, 280, 286} // InvalidResumeToken, InvalidChangeStream, ChangeStreamHistoryLost

func isHistoryLost(err error) bool {
	if err == nil {
		return false
	}
	var srvErr mongo.ServerError
	if !errors.As(err, &srvErr) {
		return false
	}
	for _, code := range historyLostCodes {
		if srvErr.HasErrorCode(code) {
			return true
		}
	}
	return false
}

// rawChange is the shape of one change-stream document, reduced to the
// fields the pipeline cares about.
type rawChange struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument struct {
		CourseID string `bson:"id_curso"`
	} `bson:"fullDocument"`
	NS struct {
		Collection string `bson:"coll"`
	} `bson:"ns"`
}

// ToChangeEvent normalizes a raw feed document into the pipeline's
// event shape. Returns false for operations outside the allow-list or
// for changes without a usable document id.
func ToChangeEvent(change rawChange, observedAt time.Time) (domain.ChangeEvent, bool) {
	op := domain.Operation(change.OperationType)
	allowed := false
	for _, want := range domain.WatchedOperations {
		if op == want {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.ChangeEvent{}, false
	}

	id := stringifyID(change.DocumentKey.ID)
	if id == "" {
		return domain.ChangeEvent{}, false
	}

	return domain.ChangeEvent{
		DocumentID: id,
		CourseID:   change.FullDocument.CourseID,
		Operation:  op,
		ObservedAt: observedAt,
	}, true
}

func stringifyID(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
