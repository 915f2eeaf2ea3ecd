package vectordb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

const maxGrpcRecvBytes = 32 * 1024 * 1024

// QdrantIndex implements VectorIndex on a qdrant grpc client.
type QdrantIndex struct {
	client    *qdrant.Client
	dimension uint64
	logger    *logging.Logger

	mu    sync.Mutex
	known map[string]bool // collections verified to exist
}

func NewQdrantIndex(ctx context.Context, cfg config.Config) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     cfg.QdrantHost,
		Port:     cfg.QdrantPort,
		UseTLS:   config.QdrantUseTLS,
		PoolSize: uint(config.QdrantPoolSize),
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGrpcRecvBytes)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:    client,
		dimension: uint64(cfg.EmbeddingDimension),
		logger:    logging.NewLogger("qdrant"),
		known:     make(map[string]bool),
	}
	go idx.closeOnDone(ctx)
	return idx, nil
}

func (q *QdrantIndex) closeOnDone(ctx context.Context) {
	<-ctx.Done()
	q.logger.Info("closing qdrant client")
	if err := q.client.Close(); err != nil {
		q.logger.Error("error closing qdrant client", "error", err)
	}
}

// Check reports index liveness for the readiness endpoint.
func (q *QdrantIndex) Check(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context, courseID string) (string, error) {
	name := CollectionName(courseID)

	q.mu.Lock()
	verified := q.known[name]
	q.mu.Unlock()
	if verified {
		return name, nil
	}

	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return "", &domain.IndexWriteError{Collection: name, Err: err}
	}
	if !exists {
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return "", &domain.IndexWriteError{Collection: name, Err: err}
		}
		for _, field := range []string{"document_id", "doc_fingerprint"} {
			_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			})
			if err != nil {
				return "", &domain.IndexWriteError{Collection: name, Err: err}
			}
		}
		q.logger.Info("created collection", "collection", name, "dimension", q.dimension)
	}

	q.mu.Lock()
	q.known[name] = true
	q.mu.Unlock()
	return name, nil
}

func (q *QdrantIndex) UpsertChunks(ctx context.Context, collection string, records []domain.EmbeddingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(rec.ChunkFingerprint).String()),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_fingerprint": rec.ChunkFingerprint,
				"document_id":       rec.Payload.DocumentID,
				"doc_fingerprint":   rec.Payload.DocFingerprint,
				"course_id":         rec.Payload.CourseID,
				"course_name":       rec.Payload.CourseName,
				"file_name":         rec.Payload.FileName,
				"source_uri":        rec.Payload.SourceURI,
				"chunk_index":       int64(rec.Payload.ChunkIndex),
				"total_chunks":      int64(rec.Payload.TotalChunks),
				"content":           rec.Payload.Text,
				"processed_at":      rec.Payload.ProcessedAt.UTC().Format(time.RFC3339),
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, &domain.IndexWriteError{Collection: collection, Err: err}
	}
	return len(points), nil
}

func (q *QdrantIndex) RetireStaleChunks(ctx context.Context, collection, documentID, currentFingerprint string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must:    []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
			MustNot: []*qdrant.Condition{qdrant.NewMatch("doc_fingerprint", currentFingerprint)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return &domain.IndexWriteError{Collection: collection, Err: err}
	}
	q.logger.Debug("retired stale chunks", "collection", collection, "documentId", documentID)
	return nil
}

func (q *QdrantIndex) CountForCourse(ctx context.Context, collection string) (uint64, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, &domain.IndexWriteError{Collection: collection, Err: err}
	}
	return count, nil
}
