package vectordb

import (
	"context"

	"github.com/google/uuid"

	"github.com/entrena-ai/coursefeed/internal/domain"
)

// VectorIndex is the pipeline's view of the vector store.
type VectorIndex interface {
	// EnsureCollection lazily creates the course's collection and
	// returns its name. Collections are never deleted by the pipeline.
	EnsureCollection(ctx context.Context, courseID string) (string, error)

	// UpsertChunks writes all records atomically per point, keyed by
	// chunk fingerprint. Redelivery overwrites, never duplicates.
	UpsertChunks(ctx context.Context, collection string, records []domain.EmbeddingRecord) (int, error)

	// RetireStaleChunks deletes points of the document whose
	// fingerprint differs from the current one. Called only after a
	// successful upsert so the index is never briefly empty for an
	// updated document.
	RetireStaleChunks(ctx context.Context, collection, documentID, currentFingerprint string) error

	// CountForCourse reports how many points the collection holds.
	CountForCourse(ctx context.Context, collection string) (uint64, error)
}

const (
	collectionPrefix  = "curso_"
	defaultCollection = "general"
)

// CollectionName maps a course id to its collection, matching the
// naming the chat runtime queries by.
func CollectionName(courseID string) string {
	if courseID == "" {
		return defaultCollection
	}
	return collectionPrefix + courseID
}

// pointNamespace pins UUIDv5 derivation so point ids stay stable
// across releases.
var pointNamespace = uuid.MustParse("c0a8e1f2-4b3d-5a6c-8d9e-0f1a2b3c4d5e")

// PointID derives the deterministic point id for a chunk fingerprint.
// Qdrant wants UUIDs; the fingerprint itself is a hex digest, so it is
// folded through UUIDv5.
func PointID(chunkFingerprint string) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(chunkFingerprint))
}
