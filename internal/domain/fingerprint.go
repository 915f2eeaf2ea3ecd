package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint hashes content into the idempotency key used for change
// detection across the whole pipeline.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChunkFingerprint derives a chunk's identity from its document version
// and position. Same document bytes and index always yield the same
// fingerprint, so redelivered messages overwrite instead of duplicating.
func ChunkFingerprint(docFingerprint string, index int) string {
	return Fingerprint(fmt.Appendf(nil, "%s:%d", docFingerprint, index))
}
