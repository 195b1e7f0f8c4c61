// Package cli provides CLI output helpers for SmartDocs.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/smartdocs/smartdocs/internal/ingest"
	"github.com/smartdocs/smartdocs/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteRankedContext writes the ranked chunks for a query to w in the given format.
func WriteRankedContext(w io.Writer, ranked *models.RankedContext, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ranked)
	}
	if len(ranked.Chunks) == 0 {
		fmt.Fprintf(w, "No matches for %q\n", ranked.Query)
		return nil
	}
	fmt.Fprintf(w, "\n%d context chunk(s) for %q\n\n", len(ranked.Chunks), ranked.Query)
	for i, sc := range ranked.Chunks {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] similarity: %.4f", i+1, sc.Similarity)
		if sc.RerankScore != 0 {
			fmt.Fprintf(w, " | rerank: %.4f", sc.RerankScore)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "chunk: %s\n", sc.Chunk.ID)
		if sc.Chunk.Metadata.Title != "" {
			fmt.Fprintf(w, "source: %s", sc.Chunk.Metadata.Title)
			if sc.Chunk.Metadata.SourcePath != "" {
				fmt.Fprintf(w, " (%s)", sc.Chunk.Metadata.SourcePath)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "\n%s\n\n", Truncate(sc.Chunk.Text, 300))
	}
	return nil
}

// WriteSummary writes an ingestion run summary to w in the given format.
func WriteSummary(w io.Writer, summary *ingest.Summary, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	fmt.Fprintf(w, "run %s finished in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  succeeded: %d\n", len(summary.Succeeded))
	fmt.Fprintf(w, "  skipped:   %d\n", len(summary.Skipped))
	fmt.Fprintf(w, "  failed:    %d\n", len(summary.Failed))
	for _, f := range summary.Failed {
		fmt.Fprintf(w, "    %s: %s\n", f.Path, f.Reason)
	}
	return nil
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
