// Package retriever assembles citation-annotated context blocks for the chat
// assistant from similarity search results.
package retriever

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/knowledge"
	"github.com/tcredex/knowledge-api/internal/metrics"
	"github.com/tcredex/knowledge-api/internal/querylang"
)

const (
	// DefaultMaxChunks caps how many chunks go into one context block.
	DefaultMaxChunks = 5
	// DefaultMinScore is the relevance floor for the first search pass.
	DefaultMinScore = 0.7
	// fallbackScoreDrop loosens the floor for the single broadened retry.
	fallbackScoreDrop = 0.1

	previewLength = 200
)

const contextInstructions = `Use the knowledge context above to answer the user's question. ` +
	`Prioritize information from the context over general knowledge. ` +
	`Use exact figures, percentages, and deadlines from the context when available. ` +
	`Cite sources using their bracketed numbers, e.g. [1] or [2]. ` +
	`If the context does not contain enough information to answer, say so rather than guessing.`

// Searcher runs a scoped similarity search.
type Searcher interface {
	Search(ctx context.Context, query string, params knowledge.SearchParams) ([]knowledge.SearchResult, error)
}

// Options scope one retrieval.
type Options struct {
	MaxChunks int
	// MinScore is the relevance floor. Zero means no floor; callers wanting
	// the standard threshold start from DefaultOptions.
	MinScore float64
	// IncludeAllCategories searches every category regardless of how the
	// query classifies. Program tags from the query still apply.
	IncludeAllCategories bool
}

func DefaultOptions() Options {
	return Options{
		MaxChunks: DefaultMaxChunks,
		MinScore:  DefaultMinScore,
	}
}

type Retriever struct {
	searcher Searcher
	logger   *zap.Logger
}

func New(searcher Searcher, logger *zap.Logger) *Retriever {
	return &Retriever{searcher: searcher, logger: logger}
}

// Retrieve classifies the query, searches within the matched categories, and
// builds the context block. When a filtered search comes back empty it
// broadens once: all categories, relevance floor lowered by 0.1. Retrieval
// never fails the caller; any error degrades to an empty context so the
// assistant answers from general knowledge.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) knowledge.RAGContext {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultMaxChunks
	}

	analysis := querylang.Analyze(query)

	params := knowledge.SearchParams{
		Limit:    opts.MaxChunks,
		MinScore: opts.MinScore,
		Programs: analysis.Programs,
	}
	if !opts.IncludeAllCategories {
		params.Categories = analysis.Categories
	}

	results, err := r.searcher.Search(ctx, query, params)
	if err != nil {
		r.logger.Warn("Knowledge search failed", zap.Error(err))
		return knowledge.RAGContext{}
	}

	if len(results) == 0 && len(params.Categories) > 0 {
		metrics.RetrievalFallbacks.Inc()

		broadened := knowledge.SearchParams{
			Limit:    opts.MaxChunks,
			MinScore: opts.MinScore - fallbackScoreDrop,
		}

		results, err = r.searcher.Search(ctx, query, broadened)
		if err != nil {
			r.logger.Warn("Broadened knowledge search failed", zap.Error(err))
			return knowledge.RAGContext{}
		}

		if len(results) > 0 {
			r.logger.Debug("Broadened search recovered results",
				zap.Int("count", len(results)),
			)
		}
	}

	if len(results) == 0 {
		return knowledge.RAGContext{}
	}

	return knowledge.RAGContext{
		Chunks:      results,
		ContextText: buildContextText(results),
		Citations:   buildCitations(results),
	}
}

func buildContextText(results []knowledge.SearchResult) string {
	blocks := make([]string, len(results))
	for i, result := range results {
		blocks[i] = fmt.Sprintf("[%d] %s\n%s", i+1, describeSource(result), result.Chunk.Content)
	}

	var b strings.Builder
	b.WriteString("<knowledge_context>\n")
	b.WriteString(strings.Join(blocks, "\n\n---\n\n"))
	b.WriteString("\n</knowledge_context>\n\n")
	b.WriteString(contextInstructions)
	return b.String()
}

func describeSource(result knowledge.SearchResult) string {
	source := result.Chunk.Metadata.Filename
	if result.Document != nil && result.Document.Title != "" {
		source = result.Document.Title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s", source)
	if result.Chunk.Metadata.Page > 0 {
		fmt.Fprintf(&b, " (page %d)", result.Chunk.Metadata.Page)
	}
	fmt.Fprintf(&b, " [%s]", result.Chunk.Metadata.Category)
	fmt.Fprintf(&b, " (relevance: %d%%)", int(math.Round(result.Score*100)))
	return b.String()
}

func buildCitations(results []knowledge.SearchResult) []knowledge.Citation {
	citations := make([]knowledge.Citation, len(results))
	for i, result := range results {
		source := result.Chunk.Metadata.Filename
		if result.Document != nil && result.Document.Title != "" {
			source = result.Document.Title
		}

		preview := result.Chunk.Content
		if len(preview) > previewLength {
			preview = preview[:previewLength] + "..."
		}

		citations[i] = knowledge.Citation{
			ID:     fmt.Sprintf("[%d]", i+1),
			Source: source,
			Page:   result.Chunk.Metadata.Page,
			Text:   preview,
		}
	}
	return citations
}

// EnhanceSystemPrompt appends the retrieved context to a base system prompt.
// An empty context leaves the prompt untouched.
func EnhanceSystemPrompt(basePrompt string, ragCtx knowledge.RAGContext) string {
	if ragCtx.ContextText == "" {
		return basePrompt
	}
	return basePrompt + "\n\n" + ragCtx.ContextText
}

// FormatCitations renders the citation list as a footer for an assistant
// response. An empty list renders as an empty string.
func FormatCitations(citations []knowledge.Citation) string {
	if len(citations) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n---\nSources:\n")
	for _, citation := range citations {
		b.WriteString(citation.ID)
		b.WriteString(" ")
		b.WriteString(citation.Source)
		if citation.Page > 0 {
			fmt.Fprintf(&b, ", page %d", citation.Page)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
