package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

var whitespaceRe = regexp.MustCompile(`[ \t]+`)

type htmlExtractor struct{}

// Extract strips chrome elements and returns the visible body text.
// Block-level structure collapses to paragraph breaks so the chunker still
// sees paragraph boundaries.
func (e *htmlExtractor) Extract(content []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, &knowledge.ExtractionError{MimeType: "text/html", Err: err}
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, pre, blockquote").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			parts = append(parts, whitespaceRe.ReplaceAllString(text, " "))
		}
	})

	text := strings.Join(parts, "\n\n")
	if text == "" {
		// Pages without block markup still get their raw body text.
		text = strings.TrimSpace(whitespaceRe.ReplaceAllString(doc.Find("body").Text(), " "))
	}
	if text == "" {
		return nil, &knowledge.ExtractionError{MimeType: "text/html", Err: errNoText}
	}

	return singlePage(text), nil
}
