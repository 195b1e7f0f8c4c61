package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/smartdocs/smartdocs/internal/models"
)

func testMeta() models.Metadata {
	return models.Metadata{SourceID: "file:abc", SourcePath: "/data/doc.txt", Title: "doc.txt"}
}

func TestNewChunkerInvalidConfig(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{100, 100},
		{100, 150},
		{0, 0},
		{-1, 0},
		{10, -1},
	}
	for _, c := range cases {
		if _, err := NewChunker(c.size, c.overlap); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewChunker(%d, %d) error = %v, want ErrInvalidConfig", c.size, c.overlap, err)
		}
	}
}

func TestChunkEmptyText(t *testing.T) {
	c, err := NewChunker(100, 10)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	if got := c.Chunk("", testMeta()); len(got) != 0 {
		t.Errorf("empty text should yield no chunks, got %d", len(got))
	}
	if got := c.Chunk("  \n\t ", testMeta()); len(got) != 0 {
		t.Errorf("whitespace text should yield no chunks, got %d", len(got))
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	c, _ := NewChunker(500, 50)
	chunks := c.Chunk("a short note", testMeta())
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.Text != "a short note" || ch.Start != 0 || ch.End != len("a short note") {
		t.Errorf("unexpected chunk: %+v", ch)
	}
	if ch.Ordinal != 0 || ch.SourceID != "file:abc" || ch.ID == "" {
		t.Errorf("unexpected identity fields: %+v", ch)
	}
}

// Chunks must cover the whole text: each chunk starts at or before the previous end,
// the first starts at 0, and the last ends at len(text).
func TestChunkCoverage(t *testing.T) {
	c, _ := NewChunker(120, 20)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)
	chunks := c.Chunk(text, testMeta())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	runes := []rune(text)
	if chunks[0].Start != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].Start)
	}
	if last := chunks[len(chunks)-1]; last.End != len(runes) {
		t.Errorf("last chunk ends at %d, want %d", last.End, len(runes))
	}
	for i, ch := range chunks {
		if ch.Text == "" {
			t.Errorf("chunk %d has empty text", i)
		}
		if ch.Start < 0 || ch.End > len(runes) || ch.Start >= ch.End {
			t.Errorf("chunk %d span [%d,%d) out of bounds", i, ch.Start, ch.End)
		}
		if string(runes[ch.Start:ch.End]) != ch.Text {
			t.Errorf("chunk %d text does not match its span", i)
		}
		if ch.Ordinal != i {
			t.Errorf("chunk %d ordinal = %d", i, ch.Ordinal)
		}
		if i > 0 && ch.Start > chunks[i-1].End {
			t.Errorf("gap between chunk %d (end %d) and %d (start %d)", i-1, chunks[i-1].End, i, ch.Start)
		}
	}
}

func TestChunkDeterministic(t *testing.T) {
	c, _ := NewChunker(200, 40)
	text := strings.Repeat("Alpha beta gamma delta. Epsilon zeta eta theta! ", 20)
	a := c.Chunk(text, testMeta())
	b := c.Chunk(text, testMeta())
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text || a[i].Start != b[i].Start || a[i].End != b[i].End {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

// A three-page document (~2800 chars) at 500/50 should land in 6-7 chunks, each
// stamped with the document's source id.
func TestChunkThreePageDocument(t *testing.T) {
	c, _ := NewChunker(500, 50)
	sentence := "Quarterly planning notes from the infrastructure review session held in March. "
	text := strings.Repeat(sentence, 35) // 79 chars * 35 = 2765
	meta := testMeta()
	chunks := c.Chunk(text, meta)
	if len(chunks) < 6 || len(chunks) > 7 {
		t.Errorf("expected 6-7 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Metadata.SourceID != meta.SourceID {
			t.Errorf("chunk %d source id = %q, want %q", i, ch.Metadata.SourceID, meta.SourceID)
		}
	}
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	c, _ := NewChunker(100, 10)
	// Sentence end at offset 80, inside the tolerance window [67, 100].
	text := strings.Repeat("x", 78) + ". " + strings.Repeat("y", 200)
	chunks := c.Chunk(text, testMeta())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0].End != 79 {
		t.Errorf("first chunk end = %d, want sentence boundary at 79", chunks[0].End)
	}
}

func TestChunkHardCutWithoutBoundary(t *testing.T) {
	c, _ := NewChunker(100, 10)
	text := strings.Repeat("z", 350)
	chunks := c.Chunk(text, testMeta())
	if chunks[0].End != 100 {
		t.Errorf("first chunk end = %d, want hard cut at 100", chunks[0].End)
	}
	// Overlap: each subsequent chunk starts 10 runes before the previous end.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start != chunks[i-1].End-10 {
			t.Errorf("chunk %d start = %d, want %d", i, chunks[i].Start, chunks[i-1].End-10)
		}
	}
}

func TestChunkMetadataNotAliased(t *testing.T) {
	c, _ := NewChunker(50, 5)
	meta := testMeta()
	meta.Extra = map[string]string{"supplier": "acme"}
	chunks := c.Chunk(strings.Repeat("w ", 100), meta)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks")
	}
	chunks[0].Metadata.Extra["supplier"] = "other"
	if chunks[1].Metadata.Extra["supplier"] != "acme" {
		t.Error("chunk metadata maps should not alias each other")
	}
}
