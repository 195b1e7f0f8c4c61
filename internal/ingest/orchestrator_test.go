package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartdocs/smartdocs/internal/chunker"
	"github.com/smartdocs/smartdocs/internal/config"
	"github.com/smartdocs/smartdocs/internal/embedding"
	"github.com/smartdocs/smartdocs/internal/extract"
	"github.com/smartdocs/smartdocs/internal/index"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, index.Manager) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(32)
	manager, err := index.NewMemoryManager("test", 32, "mock", "cosine")
	if err != nil {
		t.Fatalf("new memory manager: %v", err)
	}
	ch, err := chunker.NewChunker(200, 40)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	cfg := &config.IngestConfig{Concurrency: 2, MaxRetries: 1, Extensions: []string{"txt", "md"}}
	return NewOrchestrator(extract.NewExtractor(), ch, embedder, manager, cfg), manager
}

func writeDocs(t *testing.T, dir string, docs map[string]string) {
	t.Helper()
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestRunIngestsDirectory(t *testing.T) {
	o, manager := newTestOrchestrator(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{
		"a.txt": strings.Repeat("Alpha document sentence. ", 30),
		"b.md":  strings.Repeat("Beta document sentence. ", 30),
		"c.png": "not indexed",
	})

	summary, err := o.Run(context.Background(), []string{dir}, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Succeeded) != 2 {
		t.Errorf("succeeded = %v, want 2 files", summary.Succeeded)
	}
	if len(summary.Failed) != 0 {
		t.Errorf("failed = %v, want none", summary.Failed)
	}
	if summary.RunID == "" {
		t.Error("run ID is empty")
	}

	count, err := manager.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count == 0 {
		t.Error("no entries indexed")
	}
}

func TestRunSkipsUnchanged(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{
		"a.txt": strings.Repeat("Stable content here. ", 30),
		"b.txt": strings.Repeat("Also stable content. ", 30),
	})

	if _, err := o.Run(context.Background(), []string{dir}, Options{}); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	writeDocs(t, dir, map[string]string{
		"b.txt": strings.Repeat("Changed content now. ", 30),
	})

	summary, err := o.Run(context.Background(), []string{dir}, Options{SkipUnchanged: true})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(summary.Skipped) != 1 || filepath.Base(summary.Skipped[0]) != "a.txt" {
		t.Errorf("skipped = %v, want only a.txt", summary.Skipped)
	}
	if len(summary.Succeeded) != 1 || filepath.Base(summary.Succeeded[0]) != "b.txt" {
		t.Errorf("succeeded = %v, want only b.txt", summary.Succeeded)
	}
}

func TestRunReplacesStaleChunks(t *testing.T) {
	o, manager := newTestOrchestrator(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	writeDocs(t, dir, map[string]string{
		"doc.txt": strings.Repeat("Original long text body. ", 60),
	})

	if _, err := o.Run(context.Background(), []string{path}, Options{}); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	firstCount, _ := manager.Count(context.Background())

	// Shrink the file so a stale chunk would linger if replacement were additive.
	writeDocs(t, dir, map[string]string{"doc.txt": "Tiny now."})
	if _, err := o.Run(context.Background(), []string{path}, Options{}); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	secondCount, _ := manager.Count(context.Background())
	if secondCount >= firstCount {
		t.Errorf("count went from %d to %d, want fewer entries after shrink", firstCount, secondCount)
	}
	if secondCount != 1 {
		t.Errorf("count = %d, want 1", secondCount)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{
		"good.txt": strings.Repeat("Fine content. ", 30),
		"bad.exe":  "binary",
	})

	// Explicit file paths bypass the extension filter, so the unsupported file
	// reaches the extractor and fails there.
	summary, err := o.Run(context.Background(), []string{
		filepath.Join(dir, "good.txt"),
		filepath.Join(dir, "bad.exe"),
	}, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Succeeded) != 1 {
		t.Errorf("succeeded = %v, want 1", summary.Succeeded)
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("failed = %v, want 1", summary.Failed)
	}
	if !strings.Contains(summary.Failed[0].Reason, "unsupported format") {
		t.Errorf("failure reason = %q", summary.Failed[0].Reason)
	}
}

func TestRunClearCollection(t *testing.T) {
	o, manager := newTestOrchestrator(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{"old.txt": strings.Repeat("Old content. ", 30)})
	if _, err := o.Run(context.Background(), []string{dir}, Options{}); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	dir2 := t.TempDir()
	writeDocs(t, dir2, map[string]string{"new.txt": "New content."})
	if _, err := o.Run(context.Background(), []string{dir2}, Options{ClearCollection: true}); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	stats, err := manager.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Sources != 1 {
		t.Errorf("sources = %d, want 1 after clear", stats.Sources)
	}
}

func TestRunMissingPath(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if _, err := o.Run(context.Background(), []string{"/does/not/exist"}, Options{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestDeleteSource(t *testing.T) {
	o, manager := newTestOrchestrator(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	writeDocs(t, dir, map[string]string{"doc.txt": strings.Repeat("Content to delete. ", 30)})

	if _, err := o.Run(context.Background(), []string{path}, Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	deleted, err := o.DeleteSource(context.Background(), path)
	if err != nil {
		t.Fatalf("DeleteSource failed: %v", err)
	}
	if deleted == 0 {
		t.Error("nothing deleted")
	}
	count, _ := manager.Count(context.Background())
	if count != 0 {
		t.Errorf("count = %d after delete, want 0", count)
	}
}

func TestRunCancelledContext(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	dir := t.TempDir()
	writeDocs(t, dir, map[string]string{"a.txt": "content"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := o.Run(ctx, []string{dir}, Options{})
	if err == nil {
		t.Fatal("expected context error")
	}
	if summary == nil {
		t.Fatal("summary should still be returned on cancellation")
	}
	if len(summary.Succeeded) != 0 {
		t.Errorf("succeeded = %v with cancelled context", summary.Succeeded)
	}
}
