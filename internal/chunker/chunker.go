// Package chunker splits extracted text into overlapping chunks with provenance offsets.
package chunker

import (
	"errors"
	"unicode"

	"github.com/smartdocs/smartdocs/internal/docid"
	"github.com/smartdocs/smartdocs/internal/models"
)

// ErrInvalidConfig is returned when the chunker configuration is unusable
// (overlap at least as large as the target size, or non-positive sizes).
var ErrInvalidConfig = errors.New("chunker: overlap must be smaller than target size")

// boundaryToleranceDiv controls how far back from the target cut a sentence or
// paragraph boundary may be and still be preferred over a hard cut: target/3.
const boundaryToleranceDiv = 3

// Chunker splits text into overlapping character-window chunks, snapping window ends
// to sentence or paragraph boundaries when one lies within tolerance.
type Chunker struct {
	targetSize int
	overlap    int
}

// NewChunker creates a chunker with the given target size and overlap, both in runes.
func NewChunker(targetSize, overlap int) (*Chunker, error) {
	if targetSize <= 0 || overlap < 0 || overlap >= targetSize {
		return nil, ErrInvalidConfig
	}
	return &Chunker{targetSize: targetSize, overlap: overlap}, nil
}

// Chunk splits text into ordered chunks inheriting meta. Empty or whitespace-only text
// yields an empty slice; text no longer than one target window yields exactly one chunk.
// Output is deterministic for identical input and configuration.
func (c *Chunker) Chunk(text string, meta models.Metadata) []models.Chunk {
	runes := []rune(text)
	if isBlank(runes) {
		return nil
	}

	boundaries := boundaryOffsets(runes)
	tolerance := c.targetSize / boundaryToleranceDiv

	chunks := make([]models.Chunk, 0, len(runes)/c.targetSize+1)
	ordinal := 0
	start := 0
	for start < len(runes) {
		end := start + c.targetSize
		if end >= len(runes) {
			end = len(runes)
		} else if b := lastBoundaryIn(boundaries, end-tolerance, end); b > start {
			end = b
		}

		cm := meta.Clone()
		chunks = append(chunks, models.Chunk{
			ID:       docid.ChunkID(meta.SourceID, ordinal),
			SourceID: meta.SourceID,
			Ordinal:  ordinal,
			Text:     string(runes[start:end]),
			Start:    start,
			End:      end,
			Metadata: cm,
		})
		ordinal++

		if end >= len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// boundaryOffsets returns rune offsets just past each sentence end (". ", "! ", "? ")
// and each newline, in ascending order.
func boundaryOffsets(runes []rune) []int {
	var out []int
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\n':
			out = append(out, i+1)
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				out = append(out, i+1)
			}
		}
	}
	return out
}

// lastBoundaryIn returns the largest boundary b with lo <= b <= hi, or -1.
func lastBoundaryIn(boundaries []int, lo, hi int) int {
	best := -1
	for _, b := range boundaries {
		if b > hi {
			break
		}
		if b >= lo {
			best = b
		}
	}
	return best
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
