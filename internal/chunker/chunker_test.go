package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

func TestChunkEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n\n"} {
		chunks, err := Chunk(input, DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestChunkShortInput(t *testing.T) {
	text := "NMTC allocations are awarded annually by the CDFI Fund."

	chunks, err := Chunk(text, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"size below minimum", Options{ChunkSize: 50, ChunkOverlap: 10}},
		{"size above maximum", Options{ChunkSize: 5000, ChunkOverlap: 100}},
		{"overlap equals size", Options{ChunkSize: 500, ChunkOverlap: 500}},
		{"negative overlap", Options{ChunkSize: 500, ChunkOverlap: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Chunk("some text", tt.opts)
			var validationErr *knowledge.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestChunkWindowOverlap(t *testing.T) {
	// No sentence or newline boundaries, so windows cut at exactly
	// ChunkSize and each chunk starts with the previous chunk's tail.
	text := strings.Repeat("abcdefghij", 250)
	opts := Options{ChunkSize: 1000, ChunkOverlap: 200}

	chunks, err := Chunk(text, opts)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-opts.ChunkOverlap:]
		assert.True(t, strings.HasPrefix(chunks[i+1], tail),
			"chunk %d does not start with chunk %d's overlap", i+1, i)
	}
}

func TestChunkWindowBoundaryBackoff(t *testing.T) {
	var b strings.Builder
	for b.Len() < 3000 {
		b.WriteString("The allocation agreement sets the compliance period at seven years. ")
	}

	chunks, err := Chunk(b.String(), Options{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Every non-final window should have backed off to a sentence boundary.
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(chunk, "."), "chunk does not end at a sentence: %q", chunk[len(chunk)-20:])
	}
}

func TestChunkPreservesParagraphs(t *testing.T) {
	para := func(marker string) string {
		return marker + " " + strings.Repeat("credit allocation terms apply. ", 13)
	}
	text := para("ONE") + "\n\n" + para("TWO") + "\n\n" + para("THREE")

	chunks, err := Chunk(text, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0], "ONE")
	assert.Contains(t, chunks[0], "TWO")
	assert.Contains(t, chunks[1], "THREE")

	// The second chunk is seeded with overlap from the first, not the whole
	// of it.
	assert.NotContains(t, chunks[1], "ONE")
}

func TestChunkOversizedParagraph(t *testing.T) {
	// One paragraph well past MaxChunkSize forces the sentence splitter.
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Sentence number %d describes a qualified low-income community investment. ", i)
	}

	chunks, err := Chunk(b.String(), DefaultOptions())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), MaxChunkSize, "chunk %d exceeds maximum", i)
		assert.GreaterOrEqual(t, len(chunk), MinChunkSize, "chunk %d below minimum", i)
	}

	// All sentences must survive chunking.
	joined := strings.Join(chunks, " ")
	for i := 0; i < 40; i++ {
		assert.Contains(t, joined, fmt.Sprintf("Sentence number %d", i))
	}
}

func TestChunkDeterministic(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "Paragraph %d covers rehabilitation expenditures and related rules.\n\n", i)
	}
	text := b.String()

	first, err := Chunk(text, DefaultOptions())
	require.NoError(t, err)
	second, err := Chunk(text, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChunkNormalizesLineEndings(t *testing.T) {
	crlf := "first line\r\nsecond line"

	chunks, err := Chunk(crlf, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "first line\nsecond line", chunks[0])
}

func TestProfileFor(t *testing.T) {
	tests := []struct {
		category knowledge.Category
		size     int
		overlap  int
	}{
		{knowledge.CategoryPlatform, 800, 150},
		{knowledge.CategoryNMTC, 1000, 200},
		{knowledge.CategoryHTC, 1000, 200},
		{knowledge.CategoryLIHTC, 1000, 200},
		{knowledge.CategoryOZ, 1000, 200},
		{knowledge.CategoryCompliance, 1200, 250},
		{knowledge.CategoryGeneral, 1000, 200},
		{knowledge.CategoryState, 1000, 200},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			opts := ProfileFor(tt.category)
			assert.Equal(t, tt.size, opts.ChunkSize)
			assert.Equal(t, tt.overlap, opts.ChunkOverlap)
			assert.True(t, opts.PreserveParagraphs)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 250, EstimateTokens(strings.Repeat("x", 1000)))
}

func TestBuildChunks(t *testing.T) {
	meta := knowledge.ChunkMetadata{
		Category: knowledge.CategoryNMTC,
		Program:  "NMTC",
		Filename: "guide.txt",
	}

	chunks := BuildChunks("doc-1", []string{"alpha", "beta", "gamma"}, meta)
	require.Len(t, chunks, 3)

	seen := make(map[string]bool)
	for i, chunk := range chunks {
		assert.Equal(t, "doc-1", chunk.DocumentID)
		assert.Equal(t, i, chunk.Metadata.ChunkIndex)
		assert.Equal(t, knowledge.CategoryNMTC, chunk.Metadata.Category)
		assert.NotEmpty(t, chunk.ID)
		assert.False(t, seen[chunk.ID], "duplicate chunk id")
		seen[chunk.ID] = true
	}
	assert.Equal(t, "beta", chunks[1].Content)
}

func TestChunkPages(t *testing.T) {
	pages := []knowledge.Page{
		{PageNumber: 1, Text: "Page one content about historic rehabilitation credits and QREs for review."},
		{PageNumber: 2, Text: "Page two content about the twenty percent credit and certified structures."},
	}
	meta := knowledge.ChunkMetadata{Category: knowledge.CategoryHTC, Filename: "htc.pdf"}

	chunks, err := ChunkPages("doc-2", pages, meta, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 1, chunks[0].Metadata.Page)
	assert.Equal(t, 2, chunks[1].Metadata.Page)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, chunks[1].Metadata.ChunkIndex)
}
