// Package extract converts uploaded documents into plain text, page by page,
// selecting a parser by MIME type.
package extract

import (
	"strings"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

// Result is the extracted text of one document. FullText joins all pages;
// Pages keeps page boundaries for chunkers that preserve page numbers.
type Result struct {
	FullText  string
	Pages     []knowledge.Page
	PageCount int
}

// Extractor parses one document format into text.
type Extractor interface {
	Extract(content []byte) (*Result, error)
}

// Registry maps MIME types to extractors.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry builds a registry with all supported formats wired in.
func NewRegistry() *Registry {
	text := &textExtractor{}
	csv := &csvExtractor{}
	return &Registry{
		extractors: map[string]Extractor{
			"text/plain":               text,
			"text/markdown":            text,
			"text/csv":                 csv,
			"application/vnd.ms-excel": csv,
			"application/pdf":          &pdfExtractor{},
			"text/html":                &htmlExtractor{},
		},
	}
}

// Extract parses content with the extractor registered for mimeType. An
// unregistered type is an ExtractionError.
func (r *Registry) Extract(content []byte, mimeType string) (*Result, error) {
	// Strip any charset parameter before lookup.
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	extractor, ok := r.extractors[strings.ToLower(mimeType)]
	if !ok {
		return nil, &knowledge.ExtractionError{MimeType: mimeType}
	}
	return extractor.Extract(content)
}

// Supported reports whether mimeType has a registered extractor.
func (r *Registry) Supported(mimeType string) bool {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	_, ok := r.extractors[strings.ToLower(mimeType)]
	return ok
}

// singlePage wraps text that has no page structure of its own.
func singlePage(text string) *Result {
	return &Result{
		FullText:  text,
		Pages:     []knowledge.Page{{PageNumber: 1, Text: text}},
		PageCount: 1,
	}
}

type textExtractor struct{}

func (e *textExtractor) Extract(content []byte) (*Result, error) {
	return singlePage(string(content)), nil
}
