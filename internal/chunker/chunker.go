// Package chunker splits document text into overlapping, boundary-aware
// passages sized for embedding and retrieval.
package chunker

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

const (
	DefaultChunkSize    = 1000 // target characters per chunk
	DefaultChunkOverlap = 200  // overlap between adjacent chunks
	MinChunkSize        = 100
	MaxChunkSize        = 2000
)

var (
	crlfRe       = regexp.MustCompile(`\r\n`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	paragraphRe  = regexp.MustCompile(`\n\n+`)
	sentenceRe   = regexp.MustCompile(`([.!?])\s+`)
)

// Options configure a chunking pass.
type Options struct {
	ChunkSize          int
	ChunkOverlap       int
	PreserveParagraphs bool
}

// DefaultOptions returns the baseline 1000/200 paragraph-preserving profile.
func DefaultOptions() Options {
	return Options{
		ChunkSize:          DefaultChunkSize,
		ChunkOverlap:       DefaultChunkOverlap,
		PreserveParagraphs: true,
	}
}

// ProfileFor selects the chunk-size profile for a document category.
// Platform docs use smaller chunks for precise answers, program docs medium
// chunks, compliance docs larger chunks for fuller context.
func ProfileFor(category knowledge.Category) Options {
	switch category {
	case knowledge.CategoryPlatform:
		return Options{ChunkSize: 800, ChunkOverlap: 150, PreserveParagraphs: true}
	case knowledge.CategoryNMTC, knowledge.CategoryHTC, knowledge.CategoryLIHTC, knowledge.CategoryOZ:
		return Options{ChunkSize: 1000, ChunkOverlap: 200, PreserveParagraphs: true}
	case knowledge.CategoryCompliance:
		return Options{ChunkSize: 1200, ChunkOverlap: 250, PreserveParagraphs: true}
	default:
		return DefaultOptions()
	}
}

func (o Options) validate() error {
	if o.ChunkSize < MinChunkSize || o.ChunkSize > MaxChunkSize {
		return &knowledge.ValidationError{
			Field:  "chunkSize",
			Reason: "must be within the configured min/max chunk bounds",
		}
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		return &knowledge.ValidationError{
			Field:  "chunkOverlap",
			Reason: "must be non-negative and smaller than the chunk size",
		}
	}
	return nil
}

// Chunk splits text into ordered chunks with overlap. Empty or
// whitespace-only input yields an empty slice, not an error. Every produced
// chunk except a single sub-target-size chunk is within [MinChunkSize,
// MaxChunkSize].
func Chunk(text string, opts Options) ([]string, error) {
	if opts.ChunkSize == 0 {
		opts = DefaultOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cleaned := normalize(text)
	if cleaned == "" {
		return nil, nil
	}

	if len(cleaned) <= opts.ChunkSize {
		return []string{cleaned}, nil
	}

	var chunks []string
	if opts.PreserveParagraphs {
		chunks = chunkByParagraphs(cleaned, opts)
	} else {
		chunks = chunkByWindow(cleaned, opts)
	}

	// A too-small fragment can only appear at the tail.
	filtered := chunks[:0]
	for _, c := range chunks {
		if len(c) >= MinChunkSize {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func normalize(text string) string {
	cleaned := crlfRe.ReplaceAllString(text, "\n")
	cleaned = blankLinesRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

func chunkByParagraphs(text string, opts Options) []string {
	paragraphs := paragraphRe.Split(text, -1)

	var chunks []string
	var current string

	flush := func() {
		if trimmed := strings.TrimSpace(current); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current = ""
	}

	for _, paragraph := range paragraphs {
		para := strings.TrimSpace(paragraph)
		if para == "" {
			continue
		}

		// A paragraph over the hard maximum is split by sentences with the
		// same accumulate/flush/overlap discipline.
		if len(para) > MaxChunkSize {
			flush()
			sentenceChunk := ""
			if len(chunks) > 0 {
				sentenceChunk = overlapText(chunks[len(chunks)-1], opts.ChunkOverlap)
			}
			for _, sentence := range splitSentences(para) {
				if sentenceChunk != "" && len(sentenceChunk)+len(sentence)+1 > opts.ChunkSize {
					chunks = append(chunks, strings.TrimSpace(sentenceChunk))
					sentenceChunk = overlapText(sentenceChunk, opts.ChunkOverlap) + " " + sentence
				} else if sentenceChunk != "" {
					sentenceChunk += " " + sentence
				} else {
					sentenceChunk = sentence
				}
			}
			current = sentenceChunk
			continue
		}

		if current != "" && len(current)+len(para)+2 > opts.ChunkSize {
			flush()
			overlap := overlapText(chunks[len(chunks)-1], opts.ChunkOverlap)
			current = overlap + "\n\n" + para
		} else if current != "" {
			current += "\n\n" + para
		} else {
			current = para
		}
	}

	flush()
	return chunks
}

func chunkByWindow(text string, opts Options) []string {
	var chunks []string
	start := 0

	for start < len(text) {
		end := start + opts.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]

		// Back off to a sentence or newline boundary, but only when the
		// boundary lies past half the window; a short window keeps the hard
		// cut.
		if end < len(text) {
			breakPoint := lastBoundary(window)
			if breakPoint > opts.ChunkSize/2 {
				window = window[:breakPoint+1]
			}
		}

		chunks = append(chunks, strings.TrimSpace(window))

		advance := len(window) - opts.ChunkOverlap
		if advance <= 0 {
			advance = len(window)
		}
		start += advance
	}

	return chunks
}

// lastBoundary returns the index of the last sentence or newline boundary in
// window, or -1 when there is none.
func lastBoundary(window string) int {
	lastPeriod := strings.LastIndex(window, ". ")
	lastNewline := strings.LastIndex(window, "\n")
	if lastPeriod > lastNewline {
		return lastPeriod
	}
	return lastNewline
}

// overlapText takes up to overlapSize characters off the end of a flushed
// chunk to seed the next one, preferring to start at a sentence boundary
// found in the first half of the tail.
func overlapText(text string, overlapSize int) string {
	if len(text) <= overlapSize {
		return text
	}

	tail := text[len(text)-overlapSize:]
	if idx := strings.Index(tail, ". "); idx > 0 && idx < overlapSize/2 {
		return tail[idx+2:]
	}
	return tail
}

// splitSentences splits text on sentence-ending punctuation followed by
// whitespace. The punctuation stays with its sentence.
func splitSentences(text string) []string {
	marked := sentenceRe.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")

	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// EstimateTokens gives a rough token count (~4 characters per English token).
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4))
}

// BuildChunks wraps raw text chunks in DocumentChunk records with sequential
// chunk indexes.
func BuildChunks(documentID string, textChunks []string, meta knowledge.ChunkMetadata) []knowledge.DocumentChunk {
	chunks := make([]knowledge.DocumentChunk, 0, len(textChunks))
	now := time.Now().UTC()

	for i, content := range textChunks {
		m := meta
		m.ChunkIndex = i
		chunks = append(chunks, knowledge.DocumentChunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Content:    content,
			Metadata:   m,
			CreatedAt:  now,
		})
	}
	return chunks
}

// ChunkPages chunks page-structured input (PDFs) page by page, tagging each
// chunk with its page number. The chunk index increases across the whole
// document.
func ChunkPages(documentID string, pages []knowledge.Page, meta knowledge.ChunkMetadata, opts Options) ([]knowledge.DocumentChunk, error) {
	var all []knowledge.DocumentChunk
	now := time.Now().UTC()
	index := 0

	for _, page := range pages {
		pageChunks, err := Chunk(page.Text, opts)
		if err != nil {
			return nil, err
		}
		for _, content := range pageChunks {
			m := meta
			m.Page = page.PageNumber
			m.ChunkIndex = index
			index++
			all = append(all, knowledge.DocumentChunk{
				ID:         uuid.New().String(),
				DocumentID: documentID,
				Content:    content,
				Metadata:   m,
				CreatedAt:  now,
			})
		}
	}
	return all, nil
}
