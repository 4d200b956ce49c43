// Package fingerprint computes stable content fingerprints for ingested
// files. The indexer compares fingerprints to skip re-embedding unchanged
// documents, so the function must be deterministic across runs and
// platforms.
package fingerprint

import (
	"fmt"

	"github.com/minio/highwayhash"
)

// key is fixed: fingerprints are persisted and compared across runs,
// so the hash must never be seeded per-process. Must be 32 bytes.
var key = []byte("ancora-fingerprint-key-v1-000000")

// New returns the fingerprint of data as a fixed-width hex string.
func New(data []byte) (string, error) {
	h, err := highwayhash.New64(key)
	if err != nil {
		return "", fmt.Errorf("init fingerprint hash: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Text returns the fingerprint of a text document.
func Text(text string) (string, error) {
	return New([]byte(text))
}
