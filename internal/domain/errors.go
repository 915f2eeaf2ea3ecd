package domain

import (
	"errors"
	"fmt"
)

// The dispatcher routes failures on these types, never on message text.

// TransientError marks broker/store/service unreachability. Retried
// with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// UnsupportedFormatError means no normalizer strategy matches the
// content type. Dead-lettered immediately.
type UnsupportedFormatError struct {
	ContentType ContentType
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported content type %q", e.ContentType)
}

// ExtractionError means the content could not be turned into text, OCR
// fallback included. Dead-lettered immediately, retrying cannot help.
type ExtractionError struct {
	DocumentID string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingServiceError wraps a failed embedding call. Retried up to
// the configured limit.
type EmbeddingServiceError struct {
	Model string
	Err   error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service failed (model %s): %v", e.Model, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// IndexWriteError wraps a failed vector index write or retire. Retried;
// on exhaustion the index keeps its last consistent state.
type IndexWriteError struct {
	Collection string
	Err        error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index write failed (collection %s): %v", e.Collection, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// Retryable reports whether the dispatcher should redeliver or go
// straight to the dead-letter path.
func Retryable(err error) bool {
	var unsupported *UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return false
	}
	var extraction *ExtractionError
	return !errors.As(err, &extraction)
}

// FailureStage maps an error to the pipeline stage it belongs to, for
// dead-letter records.
func FailureStage(err error) Stage {
	var unsupported *UnsupportedFormatError
	var extraction *ExtractionError
	var embedding *EmbeddingServiceError
	var index *IndexWriteError
	switch {
	case errors.As(err, &unsupported), errors.As(err, &extraction):
		return StageNormalizing
	case errors.As(err, &embedding):
		return StageEmbedding
	case errors.As(err, &index):
		return StageUpserting
	default:
		return StageReceived
	}
}
