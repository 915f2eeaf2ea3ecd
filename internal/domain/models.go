package domain

import "time"

// ContentType tags a DocumentRecord so normalization dispatches to a
// fixed set of strategies instead of sniffing bytes.
type ContentType string

const (
	ContentPDF      ContentType = "pdf"
	ContentDocx     ContentType = "docx"
	ContentOdt      ContentType = "odt"
	ContentRtf      ContentType = "rtf"
	ContentText     ContentType = "txt"
	ContentMarkdown ContentType = "md"
	ContentHTML     ContentType = "html"
)

// Operation is the change-feed operation kind.
type Operation string

const (
	OpInsert  Operation = "insert"
	OpUpdate  Operation = "update"
	OpReplace Operation = "replace"
)

// WatchedOperations is the allow-list the watcher filters on. Deletes
// are handled indirectly by write-then-retire, not by the feed.
var WatchedOperations = []Operation{OpInsert, OpUpdate, OpReplace}

// DocumentRecord is a raw document as the collector wrote it. The
// pipeline only ever reads these.
type DocumentRecord struct {
	ID          string      `bson:"_id"`
	CourseID    string      `bson:"id_curso"`
	CourseName  string      `bson:"nombre_curso"`
	FileName    string      `bson:"nombre_archivo"`
	SourceURI   string      `bson:"ruta_archivo"`
	Content     []byte      `bson:"contenido"`
	Text        string      `bson:"texto"`
	ContentType ContentType `bson:"tipo_archivo"`
	UpdatedAt   time.Time   `bson:"fecha_actualizacion"`
	Fingerprint string      `bson:"huella"`
}

// RawFingerprint returns the stored fingerprint, computing it from the
// raw bytes when the collector did not set one.
func (d DocumentRecord) RawFingerprint() string {
	if d.Fingerprint != "" {
		return d.Fingerprint
	}
	if len(d.Content) > 0 {
		return Fingerprint(d.Content)
	}
	return Fingerprint([]byte(d.Text))
}

// ChangeEvent is one observed document-store operation. Created by the
// watcher, serialized onto the queue, consumed once by a worker.
type ChangeEvent struct {
	DocumentID string    `json:"documentId"`
	CourseID   string    `json:"courseId"`
	Operation  Operation `json:"operation"`
	ObservedAt time.Time `json:"observedAt"`
}

// NormalizedText is cleaned, embeddable text with its own fingerprint.
// Cleaning is deterministic but lossy, so this fingerprint is distinct
// from the raw one.
type NormalizedText struct {
	DocumentID  string
	CourseID    string
	Text        string
	Fingerprint string
}

// Chunk is the unit of embedding and retrieval: a bounded fragment of
// normalized text with its position inside the document.
type Chunk struct {
	DocumentID      string
	CourseID        string
	Index           int
	Text            string
	Length          int
	OverlapWithPrev int
	Fingerprint     string
}

// EmbeddingRecord is what actually lands in the vector index: the chunk
// fingerprint keys the point, the payload carries retrieval metadata.
type EmbeddingRecord struct {
	ChunkFingerprint string
	Vector           []float32
	Payload          ChunkPayload
}

// ChunkPayload is the metadata stored next to each vector.
type ChunkPayload struct {
	DocumentID     string    `json:"document_id"`
	DocFingerprint string    `json:"doc_fingerprint"`
	CourseID       string    `json:"course_id"`
	CourseName     string    `json:"course_name"`
	FileName       string    `json:"file_name"`
	SourceURI      string    `json:"source_uri"`
	ChunkIndex     int       `json:"chunk_index"`
	TotalChunks    int       `json:"total_chunks"`
	Text           string    `json:"content"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Stage names the step a message is in; used for logs, metrics, and
// dead-letter diagnostics.
type Stage string

const (
	StageReceived    Stage = "received"
	StageNormalizing Stage = "normalizing"
	StageChunking    Stage = "chunking"
	StageEmbedding   Stage = "embedding"
	StageUpserting   Stage = "upserting"
	StageAcked       Stage = "acknowledged"
)

// DeadLetterRecord wraps a permanently failed message with enough
// context to diagnose it by hand.
type DeadLetterRecord struct {
	Event      ChangeEvent `json:"event"`
	Reason     string      `json:"reason"`
	Stage      Stage       `json:"stage"`
	Attempts   int         `json:"attempts"`
	FailedAt   time.Time   `json:"failedAt"`
	WorkerHost string      `json:"workerHost,omitempty"`
}
