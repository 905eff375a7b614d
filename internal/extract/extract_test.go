package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

func TestRegistryUnsupportedType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract([]byte("data"), "image/png")

	var extractionErr *knowledge.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "image/png", extractionErr.MimeType)
}

func TestRegistrySupported(t *testing.T) {
	r := NewRegistry()

	for _, mimeType := range []string{
		"text/plain",
		"text/markdown",
		"text/csv",
		"application/vnd.ms-excel",
		"application/pdf",
		"text/html",
	} {
		assert.True(t, r.Supported(mimeType), mimeType)
	}

	assert.False(t, r.Supported("image/png"))
	assert.False(t, r.Supported("application/zip"))
}

func TestRegistryStripsCharsetParameter(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Supported("text/plain; charset=utf-8"))

	result, err := r.Extract([]byte("hello"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "hello", result.FullText)
}

func TestPlainTextExtraction(t *testing.T) {
	r := NewRegistry()

	result, err := r.Extract([]byte("# Heading\n\nBody text."), "text/markdown")
	require.NoError(t, err)

	assert.Equal(t, "# Heading\n\nBody text.", result.FullText)
	assert.Equal(t, 1, result.PageCount)
	require.Len(t, result.Pages, 1)
	assert.Equal(t, 1, result.Pages[0].PageNumber)
}

func TestCSVExtraction(t *testing.T) {
	csv := "program,rate,period\nNMTC,39%,7 years\nHTC,20%,5 years\n"
	r := NewRegistry()

	result, err := r.Extract([]byte(csv), "text/csv")
	require.NoError(t, err)

	assert.Contains(t, result.FullText, "program: NMTC")
	assert.Contains(t, result.FullText, "rate: 39%")
	assert.Contains(t, result.FullText, "period: 7 years")
	assert.Contains(t, result.FullText, "program: HTC")
	assert.Contains(t, result.FullText, "\n\n---\n\n")
	assert.Equal(t, 1, result.PageCount)
}

func TestCSVExtractionGroupsRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,value\n")
	for i := 0; i < 25; i++ {
		b.WriteString("row,1\n")
	}
	r := NewRegistry()

	result, err := r.Extract([]byte(b.String()), "text/csv")
	require.NoError(t, err)

	// 25 rows at 10 per section.
	assert.Equal(t, 3, result.PageCount)
	require.Len(t, result.Pages, 3)
	assert.Equal(t, 2, strings.Count(result.FullText, "=== SECTION ==="))
}

func TestCSVExtractionSkipsEmptyCells(t *testing.T) {
	csv := "a,b,c\n1,,3\n"
	r := NewRegistry()

	result, err := r.Extract([]byte(csv), "text/csv")
	require.NoError(t, err)

	assert.Contains(t, result.FullText, "a: 1")
	assert.NotContains(t, result.FullText, "b:")
	assert.Contains(t, result.FullText, "c: 3")
}

func TestCSVExtractionMalformedInput(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract([]byte("a,\"unterminated\n"), "text/csv")

	var extractionErr *knowledge.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
}

func TestHTMLExtraction(t *testing.T) {
	html := `<html><head><style>body { color: red; }</style></head><body>
		<nav>Site navigation</nav>
		<h1>Tax Credit Overview</h1>
		<p>The credit equals 39% of the investment.</p>
		<script>track();</script>
		<footer>Copyright</footer>
	</body></html>`
	r := NewRegistry()

	result, err := r.Extract([]byte(html), "text/html")
	require.NoError(t, err)

	assert.Contains(t, result.FullText, "Tax Credit Overview")
	assert.Contains(t, result.FullText, "The credit equals 39% of the investment.")
	assert.NotContains(t, result.FullText, "Site navigation")
	assert.NotContains(t, result.FullText, "track()")
	assert.NotContains(t, result.FullText, "Copyright")
	assert.NotContains(t, result.FullText, "color: red")
}

func TestHTMLExtractionEmptyBody(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract([]byte("<html><body><script>x()</script></body></html>"), "text/html")

	var extractionErr *knowledge.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
}
