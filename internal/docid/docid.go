// Package docid derives stable identifiers for sources and chunks.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const (
	sourcePrefix = "file:"
	chunkPrefix  = "chunk:"
)

// SourceID returns a stable source identifier for the given absolute path. The same
// path always yields the same ID, so re-ingesting a file replaces its prior entries.
func SourceID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	sum := sha256.Sum256([]byte(normalized))
	return sourcePrefix + hex.EncodeToString(sum[:])
}

// ChunkID returns the identifier for the chunk at ordinal within sourceID. Derived, not
// random: the ordinal-th chunk of a source keeps its ID across re-ingestions, which is
// what makes index upserts replace instead of accumulate.
func ChunkID(sourceID string, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", sourceID, ordinal)))
	return chunkPrefix + hex.EncodeToString(sum[:])
}

// ContentHash returns the hex sha256 of raw file content, used for unchanged-file
// skip detection.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
