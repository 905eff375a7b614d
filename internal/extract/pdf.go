package extract

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

var errNoText = errors.New("no extractable text")

type pdfExtractor struct{}

// Extract reads the document page by page so chunk metadata can carry real
// page numbers for citations.
func (e *pdfExtractor) Extract(content []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &knowledge.ExtractionError{MimeType: "application/pdf", Err: err}
	}

	var pages []knowledge.Page
	var full strings.Builder

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, knowledge.Page{
			PageNumber: i,
			Text:       text,
		})

		if full.Len() > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(text)
	}

	if len(pages) == 0 {
		return nil, &knowledge.ExtractionError{
			MimeType: "application/pdf",
			Err:      errNoText,
		}
	}

	return &Result{
		FullText:  full.String(),
		Pages:     pages,
		PageCount: reader.NumPage(),
	}, nil
}
