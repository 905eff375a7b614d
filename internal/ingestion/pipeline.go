// Package ingestion turns uploaded documents into embedded, searchable
// chunks: extract, checksum, chunk, embed, store.
package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/chunker"
	"github.com/tcredex/knowledge-api/internal/embedding"
	"github.com/tcredex/knowledge-api/internal/extract"
	"github.com/tcredex/knowledge-api/internal/knowledge"
	"github.com/tcredex/knowledge-api/internal/metrics"
	"github.com/tcredex/knowledge-api/pkg/utils"
)

// costPerThousandTokens is the embedding price used for estimates.
const costPerThousandTokens = 0.00002

// Store is the slice of the knowledge store the pipeline writes through.
type Store interface {
	FindDocumentByChecksum(ctx context.Context, checksum string) (*knowledge.DocumentMetadata, error)
	StoreDocument(ctx context.Context, doc *knowledge.DocumentMetadata) error
	StoreChunks(ctx context.Context, chunks []knowledge.DocumentChunk) error
	DeleteDocument(ctx context.Context, id string) (int, error)
}

// Embedder generates embeddings for chunk batches.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]embedding.Result, error)
}

// Input is one document to ingest.
type Input struct {
	Filename   string
	MimeType   string
	Content    []byte
	Category   knowledge.Category
	Program    string
	Title      string
	Source     string
	UploadedBy string
}

// CostEstimate predicts what embedding a document would cost.
type CostEstimate struct {
	Chunks          int     `json:"chunks"`
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedUSD    float64 `json:"estimated_usd"`
}

type Pipeline struct {
	store     Store
	extractor *extract.Registry
	embedder  Embedder
	batchSize int
	logger    *zap.Logger
}

func NewPipeline(store Store, extractor *extract.Registry, embedder Embedder, batchSize int, logger *zap.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Pipeline{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Ingest processes one document end to end. Expected failures come back as
// an error-status result so a batch caller can keep going; the returned
// error mirrors the result for single-document callers.
//
// Once the document row exists, any later failure deletes the document again
// so no half-ingested state survives.
func (p *Pipeline) Ingest(ctx context.Context, input Input) (*knowledge.IngestResult, error) {
	result := &knowledge.IngestResult{Filename: input.Filename}

	if input.Category == "" {
		input.Category = knowledge.CategoryGeneral
	}
	if !input.Category.Valid() {
		return fail(result, &knowledge.ValidationError{
			Field:  "category",
			Reason: fmt.Sprintf("unknown category %q", input.Category),
		})
	}

	extracted, err := p.extractor.Extract(input.Content, input.MimeType)
	if err != nil {
		return fail(result, err)
	}

	// The checksum is bookkeeping, not a gate: identical content may be
	// ingested again, for example under a different category or program.
	checksum := utils.Checksum(string(input.Content))
	existing, err := p.store.FindDocumentByChecksum(ctx, checksum)
	if err != nil {
		p.logger.Warn("Checksum lookup failed", zap.Error(err))
	} else if existing != nil {
		p.logger.Info("Content matches an existing document",
			zap.String("filename", input.Filename),
			zap.String("existing_id", existing.ID),
		)
	}

	if input.Title == "" {
		input.Title = strings.TrimSuffix(input.Filename, filepath.Ext(input.Filename))
	}

	doc := &knowledge.DocumentMetadata{
		ID:         uuid.New().String(),
		Filename:   input.Filename,
		Category:   input.Category,
		Program:    input.Program,
		Title:      input.Title,
		Source:     input.Source,
		PageCount:  extracted.PageCount,
		UploadedAt: time.Now().UTC(),
		UploadedBy: input.UploadedBy,
		Checksum:   checksum,
	}
	result.DocumentID = doc.ID

	chunks, err := p.buildChunks(doc, extracted)
	if err != nil {
		return fail(result, err)
	}
	if len(chunks) == 0 {
		return fail(result, &knowledge.ExtractionError{
			MimeType: input.MimeType,
			Err:      fmt.Errorf("document produced no chunks"),
		})
	}

	if err := p.store.StoreDocument(ctx, doc); err != nil {
		return fail(result, err)
	}

	if err := p.embedChunks(ctx, chunks); err != nil {
		p.cleanup(ctx, doc.ID)
		return fail(result, err)
	}

	if err := p.store.StoreChunks(ctx, chunks); err != nil {
		p.cleanup(ctx, doc.ID)
		return fail(result, err)
	}

	p.logger.Info("Document ingested",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.String("category", string(doc.Category)),
		zap.Int("chunks", len(chunks)),
	)

	result.ChunksCreated = len(chunks)
	result.Status = knowledge.StatusSuccess
	return result, nil
}

// IngestAll processes documents sequentially. One document's failure does
// not stop the rest; each result reports its own status.
func (p *Pipeline) IngestAll(ctx context.Context, inputs []Input) []knowledge.IngestResult {
	results := make([]knowledge.IngestResult, 0, len(inputs))
	for _, input := range inputs {
		result, _ := p.Ingest(ctx, input)
		results = append(results, *result)
	}
	return results
}

// Reingest replaces an existing document with fresh content. The old
// document and its vectors are removed first; the replacement gets a new
// identity.
func (p *Pipeline) Reingest(ctx context.Context, documentID string, input Input) (*knowledge.IngestResult, error) {
	if _, err := p.store.DeleteDocument(ctx, documentID); err != nil {
		result := &knowledge.IngestResult{Filename: input.Filename}
		return fail(result, err)
	}
	return p.Ingest(ctx, input)
}

// EstimateCost extracts and chunks the document without embedding or storing
// anything, and prices the embedding call.
func (p *Pipeline) EstimateCost(input Input) (*CostEstimate, error) {
	extracted, err := p.extractor.Extract(input.Content, input.MimeType)
	if err != nil {
		return nil, err
	}

	category := input.Category
	if category == "" {
		category = knowledge.CategoryGeneral
	}

	textChunks, err := chunker.Chunk(extracted.FullText, chunker.ProfileFor(category))
	if err != nil {
		return nil, err
	}

	tokens := 0
	for _, chunk := range textChunks {
		tokens += chunker.EstimateTokens(chunk)
	}

	return &CostEstimate{
		Chunks:          len(textChunks),
		EstimatedTokens: tokens,
		EstimatedUSD:    float64(tokens) / 1000 * costPerThousandTokens,
	}, nil
}

func (p *Pipeline) buildChunks(doc *knowledge.DocumentMetadata, extracted *extract.Result) ([]knowledge.DocumentChunk, error) {
	opts := chunker.ProfileFor(doc.Category)
	meta := knowledge.ChunkMetadata{
		Category: doc.Category,
		Program:  doc.Program,
		Filename: doc.Filename,
	}

	// Page-structured sources chunk per page so citations can name pages.
	if extracted.PageCount > 1 {
		return chunker.ChunkPages(doc.ID, extracted.Pages, meta, opts)
	}

	textChunks, err := chunker.Chunk(extracted.FullText, opts)
	if err != nil {
		return nil, err
	}
	return chunker.BuildChunks(doc.ID, textChunks, meta), nil
}

// embedChunks fills in chunk embeddings batch by batch, preserving chunk
// order.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []knowledge.DocumentChunk) error {
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i, chunk := range chunks[start:end] {
			texts[i] = chunk.Content
		}

		results, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		for i := range results {
			chunks[start+i].Embedding = results[i].Vector
			metrics.EmbeddingTokensUsed.Add(float64(results[i].Tokens))
		}
	}
	return nil
}

func (p *Pipeline) cleanup(ctx context.Context, documentID string) {
	if _, err := p.store.DeleteDocument(ctx, documentID); err != nil {
		p.logger.Error("Failed to clean up partial ingestion",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
	}
}

func fail(result *knowledge.IngestResult, err error) (*knowledge.IngestResult, error) {
	result.Status = knowledge.StatusError
	result.Error = err.Error()
	return result, err
}
