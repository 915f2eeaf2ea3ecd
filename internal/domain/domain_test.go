package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint([]byte("course syllabus"))
	b := Fingerprint([]byte("course syllabus"))
	if a != b {
		t.Errorf("same bytes produced different fingerprints: %s vs %s", a, b)
	}
	if a == Fingerprint([]byte("course syllabus v2")) {
		t.Error("different bytes produced the same fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestChunkFingerprint_IndexSensitive(t *testing.T) {
	doc := Fingerprint([]byte("content"))
	if ChunkFingerprint(doc, 0) == ChunkFingerprint(doc, 1) {
		t.Error("adjacent chunk indices must not collide")
	}
	if ChunkFingerprint(doc, 2) != ChunkFingerprint(doc, 2) {
		t.Error("chunk fingerprint is not deterministic")
	}
}

func TestRawFingerprint_FallsBackToText(t *testing.T) {
	doc := DocumentRecord{Text: "hola"}
	if doc.RawFingerprint() != Fingerprint([]byte("hola")) {
		t.Error("expected fingerprint of text when no bytes or stored hash present")
	}

	doc.Fingerprint = "precomputed"
	if doc.RawFingerprint() != "precomputed" {
		t.Error("stored fingerprint must win")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&TransientError{Op: "publish", Err: errors.New("conn refused")}, true},
		{&EmbeddingServiceError{Model: "m", Err: errors.New("429")}, true},
		{&IndexWriteError{Collection: "curso_1", Err: errors.New("unavailable")}, true},
		{&UnsupportedFormatError{ContentType: "exe"}, false},
		{&ExtractionError{DocumentID: "d1", Err: errors.New("empty")}, false},
		{fmt.Errorf("wrapped: %w", &ExtractionError{DocumentID: "d1"}), false},
		{errors.New("untyped"), true},
	}

	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v; want %v", tt.err, got, tt.want)
		}
	}
}

func TestFailureStage(t *testing.T) {
	tests := []struct {
		err  error
		want Stage
	}{
		{&ExtractionError{DocumentID: "d"}, StageNormalizing},
		{&UnsupportedFormatError{ContentType: "bin"}, StageNormalizing},
		{&EmbeddingServiceError{Model: "m"}, StageEmbedding},
		{&IndexWriteError{Collection: "c"}, StageUpserting},
		{errors.New("other"), StageReceived},
	}

	for _, tt := range tests {
		if got := FailureStage(tt.err); got != tt.want {
			t.Errorf("FailureStage(%v) = %s; want %s", tt.err, got, tt.want)
		}
	}
}
