package watcher

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/internal/metrics"
)

// Standalone deployments have no oplog, so db.Watch fails with code
// 40573 and the watcher degrades to snapshot polling instead.
func isChangeStreamUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var srvErr mongo.ServerError
	return errors.As(err, &srvErr) && srvErr.HasErrorCode(40573)
}

// polledState is one document's snapshot entry between poll passes.
type polledState struct {
	fingerprint string
	courseID    string
}

// pollLoop approximates the change feed on deployments without change
// streams. Each pass fingerprints every document in the watched
// collections and emits an insert or update event for ids that are new
// or changed since the previous snapshot. The resume token stays
// untouched; deletes are not replayed, same as the stream path.
func (w *Watcher) pollLoop(ctx context.Context) error {
	w.logger.Warn("change streams unavailable, polling collections", "interval", pollInterval)

	seen := make(map[string]map[string]polledState, len(w.collections))
	for _, coll := range w.collections {
		state, err := w.collectionState(ctx, coll)
		if err != nil {
			w.logger.Warn("could not take the initial snapshot", "collection", coll, "error", err)
			state = map[string]polledState{}
		}
		seen[coll] = state
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case <-ticker.C:
			w.pollPass(ctx, seen)
		}
	}
}

func (w *Watcher) pollPass(ctx context.Context, seen map[string]map[string]polledState) {
	for _, coll := range w.collections {
		current, err := w.collectionState(ctx, coll)
		if err != nil {
			w.logger.Warn("poll pass failed", "collection", coll, "error", err)
			continue
		}

		published := true
		for _, ev := range polledEvents(seen[coll], current, time.Now().UTC()) {
			if err := w.publisher.PublishChange(ctx, ev); err != nil {
				// keep the old snapshot so the change is retried next pass
				w.logger.Warn("publish failed, keeping previous snapshot", "error", err)
				published = false
				break
			}
			metrics.EventPublished(string(ev.Operation))
			w.logger.Debug("change published",
				"operation", ev.Operation, "documentId", ev.DocumentID, "courseId", ev.CourseID)
		}
		if published {
			seen[coll] = current
		}
	}
}

func (w *Watcher) collectionState(ctx context.Context, coll string) (map[string]polledState, error) {
	cursor, err := w.db.Collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	state := make(map[string]polledState)
	for cursor.Next(ctx) {
		var doc struct {
			ID       any    `bson:"_id"`
			CourseID string `bson:"id_curso"`
		}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		id := stringifyID(doc.ID)
		if id == "" {
			continue
		}
		state[id] = polledState{
			fingerprint: domain.Fingerprint(cursor.Current),
			courseID:    doc.CourseID,
		}
	}
	return state, cursor.Err()
}

// polledEvents diffs two snapshots of one collection into the change
// events a stream would have produced.
func polledEvents(prev, current map[string]polledState, observedAt time.Time) []domain.ChangeEvent {
	var events []domain.ChangeEvent
	for id, doc := range current {
		op := domain.OpInsert
		if old, ok := prev[id]; ok {
			if old.fingerprint == doc.fingerprint {
				continue
			}
			op = domain.OpUpdate
		}
		events = append(events, domain.ChangeEvent{
			DocumentID: id,
			CourseID:   doc.courseID,
			Operation:  op,
			ObservedAt: observedAt,
		})
	}
	return events
}
