package docid

import (
	"strings"
	"testing"
)

func TestSourceIDStable(t *testing.T) {
	a := SourceID("/data/reports/q3.pdf")
	b := SourceID("/data/reports/q3.pdf")
	if a != b {
		t.Errorf("same path should yield same ID: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "file:") {
		t.Errorf("source ID should have file: prefix, got %s", a)
	}
	if a == SourceID("/data/reports/q4.pdf") {
		t.Error("different paths should yield different IDs")
	}
}

func TestSourceIDCleansPath(t *testing.T) {
	if SourceID("/data//reports/./q3.pdf") != SourceID("/data/reports/q3.pdf") {
		t.Error("equivalent paths should yield the same ID")
	}
}

func TestChunkIDStablePerOrdinal(t *testing.T) {
	src := SourceID("/data/a.txt")
	if ChunkID(src, 0) != ChunkID(src, 0) {
		t.Error("chunk ID should be deterministic")
	}
	if ChunkID(src, 0) == ChunkID(src, 1) {
		t.Error("different ordinals should yield different chunk IDs")
	}
	if ChunkID(src, 1) == ChunkID(SourceID("/data/b.txt"), 1) {
		t.Error("different sources should yield different chunk IDs")
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash([]byte("hello")) != ContentHash([]byte("hello")) {
		t.Error("content hash should be deterministic")
	}
	if ContentHash([]byte("hello")) == ContentHash([]byte("hello ")) {
		t.Error("different content should hash differently")
	}
}
