package pipeline

import (
	"context"
	"time"

	"github.com/entrena-ai/coursefeed/internal/chunker"
	"github.com/entrena-ai/coursefeed/internal/config"
	"github.com/entrena-ai/coursefeed/internal/domain"
	"github.com/entrena-ai/coursefeed/internal/embed"
	"github.com/entrena-ai/coursefeed/internal/metrics"
	"github.com/entrena-ai/coursefeed/internal/vectordb"
	"github.com/entrena-ai/coursefeed/pkg/logging"
)

// DocumentSource re-reads the raw record for an event; the queue only
// carries ids, and a fresh read guarantees the latest content gets
// embedded.
type DocumentSource interface {
	FindDocument(ctx context.Context, documentID string) (domain.DocumentRecord, error)
}

// Normalizer is the cleaning stage.
type Normalizer interface {
	Normalize(ctx context.Context, doc domain.DocumentRecord) (domain.NormalizedText, error)
}

// FingerprintStore remembers the last fully processed version of each
// document.
type FingerprintStore interface {
	LastFingerprint(ctx context.Context, documentID string) (string, error)
	SetLastFingerprint(ctx context.Context, documentID, fingerprint string) error
}

// Pipeline runs one message end to end:
// normalize → chunk → embed → upsert → retire. A failure at any stage
// fails the whole message; chunks of a document are never partially
// committed as the final state, because stale-chunk retirement and the
// fingerprint record only happen after every chunk is written.
type Pipeline struct {
	docs       DocumentSource
	normalizer Normalizer
	splitter   *chunker.Splitter
	embedder   embed.Embedder
	index      vectordb.VectorIndex
	state      FingerprintStore
	logger     *logging.Logger
}

func New(docs DocumentSource, normalizer Normalizer, splitter *chunker.Splitter, embedder embed.Embedder, index vectordb.VectorIndex, state FingerprintStore) *Pipeline {
	return &Pipeline{
		docs:       docs,
		normalizer: normalizer,
		splitter:   splitter,
		embedder:   embedder,
		index:      index,
		state:      state,
		logger:     logging.NewLogger("pipeline"),
	}
}

// Process enriches one change event. Processing the same document
// version twice is a no-op: the cleaned-text fingerprint is compared
// against the last fully processed one before any index write.
func (p *Pipeline) Process(ctx context.Context, ev domain.ChangeEvent) error {
	log := p.logger.With("documentId", ev.DocumentID, "courseId", ev.CourseID)

	doc, err := p.docs.FindDocument(ctx, ev.DocumentID)
	if err != nil {
		return err
	}
	log.Debug("document fetched", "contentType", doc.ContentType, "rawFingerprint", doc.RawFingerprint())

	start := time.Now()
	norm, err := p.normalizer.Normalize(ctx, doc)
	metrics.ObserveStage(string(domain.StageNormalizing), time.Since(start))
	if err != nil {
		return err
	}

	last, err := p.state.LastFingerprint(ctx, doc.ID)
	if err != nil {
		return err
	}
	if last == norm.Fingerprint {
		log.Info("fingerprint unchanged, skipping", "fingerprint", norm.Fingerprint)
		return nil
	}

	start = time.Now()
	chunks := p.splitter.Split(norm)
	metrics.ObserveStage(string(domain.StageChunking), time.Since(start))
	log.Debug("document chunked", "chunks", len(chunks))

	collection, err := p.index.EnsureCollection(ctx, doc.CourseID)
	if err != nil {
		return err
	}

	written, err := p.writeChunks(ctx, collection, doc, norm, chunks)
	if err != nil {
		return err
	}

	// retire only after the complete new set is confirmed written, so
	// an updated document is never briefly absent from the index
	if err := p.index.RetireStaleChunks(ctx, collection, doc.ID, norm.Fingerprint); err != nil {
		return err
	}
	if err := p.state.SetLastFingerprint(ctx, doc.ID, norm.Fingerprint); err != nil {
		return err
	}

	metrics.EmbeddingsWritten(written)
	log.Info("document indexed", "collection", collection, "chunks", written, "fingerprint", norm.Fingerprint)
	return nil
}

func (p *Pipeline) writeChunks(ctx context.Context, collection string, doc domain.DocumentRecord, norm domain.NormalizedText, chunks []domain.Chunk) (int, error) {
	processedAt := time.Now().UTC()
	total := len(chunks)
	written := 0

	for i := 0; i < total; i += config.EmbeddingBatchSize {
		end := i + config.EmbeddingBatchSize
		if end > total {
			end = total
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		start := time.Now()
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		metrics.ObserveStage(string(domain.StageEmbedding), time.Since(start))
		if err != nil {
			return written, err
		}

		records := make([]domain.EmbeddingRecord, len(batch))
		for j, c := range batch {
			records[j] = domain.EmbeddingRecord{
				ChunkFingerprint: c.Fingerprint,
				Vector:           vectors[j],
				Payload: domain.ChunkPayload{
					DocumentID:     doc.ID,
					DocFingerprint: norm.Fingerprint,
					CourseID:       doc.CourseID,
					CourseName:     doc.CourseName,
					FileName:       doc.FileName,
					SourceURI:      doc.SourceURI,
					ChunkIndex:     c.Index,
					TotalChunks:    total,
					Text:           c.Text,
					ProcessedAt:    processedAt,
				},
			}
		}

		start = time.Now()
		n, err := p.index.UpsertChunks(ctx, collection, records)
		metrics.ObserveStage(string(domain.StageUpserting), time.Since(start))
		if err != nil {
			return written, err
		}
		written += n
	}

	return written, nil
}
