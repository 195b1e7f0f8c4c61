// Package extract converts raw files into extracted source documents with metadata.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smartdocs/smartdocs/internal/docid"
	"github.com/smartdocs/smartdocs/internal/models"
)

// ErrUnsupportedFormat indicates the file's format is not recognized. Per-file and
// isolated: a batch run records it and moves on.
var ErrUnsupportedFormat = errors.New("extract: unsupported format")

// Extractor extracts plain text and metadata from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its SourceDocument: extracted text plus
// provenance metadata, with a stable source ID derived from the absolute path and a
// content hash of the raw bytes.
func (e *Extractor) Extract(path string) (*models.SourceDocument, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	text, meta, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, err
	}

	doc := &models.SourceDocument{
		ID:          docid.SourceID(absPath),
		Path:        absPath,
		Format:      strings.TrimPrefix(ext, "."),
		ContentHash: docid.ContentHash(content),
		Text:        text,
		ExtractedAt: time.Now(),
	}
	meta.SourceID = doc.ID
	meta.SourcePath = absPath
	meta.Title = filepath.Base(absPath)
	meta.Format = doc.Format
	meta.ContentHash = doc.ContentHash
	doc.Metadata = meta
	return doc, nil
}

// ExtractBytes extracts text and format-specific metadata from content based on the
// given extension (including the leading dot). Unrecognized extensions return
// ErrUnsupportedFormat.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, models.Metadata, error) {
	var (
		text string
		meta models.Metadata
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".odt", ".rtf":
		text, err = extractWithCat(content)
	case ".xlsx":
		text, err = extractExcel(content)
	case ".pptx":
		text, err = extractPPTX(content)
	case ".odp":
		text, err = extractODP(content)
	case ".ods":
		text, err = extractODS(content)
	case ".eml":
		return extractEML(content)
	case ".txt", ".md", ".rst", "":
		text, err = extractPlain(content)
	case ".msg":
		// Outlook OLE containers need a dedicated parser; not carried here.
		return "", meta, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	default:
		return "", meta, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return text, meta, err
}
