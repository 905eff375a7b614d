package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

// rowsPerSection controls how many records are grouped into one page so that
// large spreadsheets chunk along row boundaries instead of mid-record.
const rowsPerSection = 10

type csvExtractor struct{}

// Extract renders each record as "Header: Value" lines so column context
// survives chunking, grouped into sections of rowsPerSection records.
func (e *csvExtractor) Extract(content []byte) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &knowledge.ExtractionError{MimeType: "text/csv", Err: err}
	}
	if len(records) == 0 {
		return singlePage(""), nil
	}

	headers := records[0]
	rows := records[1:]
	if len(rows) == 0 {
		return singlePage(strings.Join(headers, ", ")), nil
	}

	var pages []knowledge.Page
	for start := 0; start < len(rows); start += rowsPerSection {
		end := start + rowsPerSection
		if end > len(rows) {
			end = len(rows)
		}

		rendered := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			rendered = append(rendered, renderRow(headers, row))
		}

		pages = append(pages, knowledge.Page{
			PageNumber: len(pages) + 1,
			Text:       strings.Join(rendered, "\n\n---\n\n"),
		})
	}

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}

	return &Result{
		FullText:  strings.Join(texts, "\n\n=== SECTION ===\n\n"),
		Pages:     pages,
		PageCount: len(pages),
	}, nil
}

func renderRow(headers, row []string) string {
	lines := make([]string, 0, len(row))
	for i, value := range row {
		if strings.TrimSpace(value) == "" {
			continue
		}
		header := fmt.Sprintf("Column %d", i+1)
		if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
			header = strings.TrimSpace(headers[i])
		}
		lines = append(lines, fmt.Sprintf("%s: %s", header, strings.TrimSpace(value)))
	}
	return strings.Join(lines, "\n")
}
