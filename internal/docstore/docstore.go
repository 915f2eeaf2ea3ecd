package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// Store reads DocumentRecords the collector wrote. The pipeline never
// writes here.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	collections []string
	logger      *logging.Logger
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetConnectTimeout(config.MongoConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to document store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.MongoConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("document store unreachable: %w", err)
	}

	s := &Store{
		client:      client,
		db:          client.Database(cfg.MongoDatabase),
		collections: cfg.WatchCollections,
		logger:      logging.NewLogger("docstore"),
	}
	go s.closeOnDone(ctx)
	return s, nil
}

func (s *Store) closeOnDone(ctx context.Context) {
	<-ctx.Done()
	if err := s.client.Disconnect(context.Background()); err != nil {
		s.logger.Error("error disconnecting from document store", "error", err)
	}
	s.logger.Info("document store connection closed")
}

// Database exposes the underlying handle for the change-stream watcher.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// rawRecord mirrors DocumentRecord but leaves _id untyped: the
// collector writes ObjectIDs, older records carry plain strings.
type rawRecord struct {
	ID          any                `bson:"_id"`
	CourseID    string             `bson:"id_curso"`
	CourseName  string             `bson:"nombre_curso"`
	FileName    string             `bson:"nombre_archivo"`
	SourceURI   string             `bson:"ruta_archivo"`
	Content     []byte             `bson:"contenido"`
	Text        string             `bson:"texto"`
	ContentType domain.ContentType `bson:"tipo_archivo"`
	UpdatedAt   primitive.DateTime `bson:"fecha_actualizacion"`
	Fingerprint string             `bson:"huella"`
}

// FindDocument looks the document up across the watched collections.
// Unreachability is transient; a vanished document is also surfaced as
// transient, since it may simply not be visible on this read yet.
func (s *Store) FindDocument(ctx context.Context, documentID string) (domain.DocumentRecord, error) {
	filter := idFilter(documentID)

	for _, coll := range s.collections {
		var raw rawRecord
		err := s.db.Collection(coll).FindOne(ctx, filter).Decode(&raw)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return domain.DocumentRecord{}, &domain.TransientError{Op: "document lookup", Err: err}
		}
		return toRecord(raw), nil
	}

	return domain.DocumentRecord{}, &domain.TransientError{
		Op:  "document lookup",
		Err: fmt.Errorf("document %s not found in watched collections", documentID),
	}
}

func idFilter(documentID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(documentID); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, documentID}}}
	}
	return bson.M{"_id": documentID}
}

func toRecord(raw rawRecord) domain.DocumentRecord {
	return domain.DocumentRecord{
		ID:          StringifyID(raw.ID),
		CourseID:    raw.CourseID,
		CourseName:  raw.CourseName,
		FileName:    raw.FileName,
		SourceURI:   raw.SourceURI,
		Content:     raw.Content,
		Text:        raw.Text,
		ContentType: raw.ContentType,
		UpdatedAt:   raw.UpdatedAt.Time(),
		Fingerprint: raw.Fingerprint,
	}
}

// StringifyID flattens whatever _id shape the collector used into the
// id the rest of the pipeline carries.
func StringifyID(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
