// Package models defines core data structures for documents, chunks, and retrieval results.
package models

import "time"

// Metadata carries document provenance. The fixed fields cover every format; Extra holds
// format-specific pairs (email recipients, sheet names, ...) without losing type safety
// on the core schema.
type Metadata struct {
	SourceID    string            `json:"source_id"`
	SourcePath  string            `json:"source_path"`
	Title       string            `json:"title,omitempty"`
	Format      string            `json:"format,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
	Sender      string            `json:"sender,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	SentAt      time.Time         `json:"sent_at,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy so chunks can inherit document metadata without aliasing Extra.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// SourceDocument is the extracted form of one ingested file. It is immutable once
// created; re-ingesting a changed file produces a new SourceDocument that supersedes
// the previous one in the index.
type SourceDocument struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Format      string    `json:"format"`
	ContentHash string    `json:"content_hash"`
	Text        string    `json:"text"`
	Metadata    Metadata  `json:"metadata"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Chunk is the atomic unit of indexing and retrieval: a bounded segment of one source
// document. Start and End are rune offsets into the source text; neighboring chunks may
// overlap in text but never share an ordinal.
type Chunk struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	Ordinal  int      `json:"ordinal"`
	Text     string   `json:"text"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Metadata Metadata `json:"metadata"`
}
