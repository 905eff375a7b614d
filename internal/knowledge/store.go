package knowledge

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/pkg/utils"
)

// DefaultSearchLimit applies when SearchParams.Limit is zero.
const DefaultSearchLimit = 5

// MetadataStore is the document/chunk system of record.
type MetadataStore interface {
	InsertDocument(ctx context.Context, doc *DocumentMetadata) error
	GetDocument(ctx context.Context, id string) (*DocumentMetadata, error)
	FindDocumentByChecksum(ctx context.Context, checksum string) (*DocumentMetadata, error)
	ListDocuments(ctx context.Context, category Category) ([]DocumentMetadata, error)
	DeleteDocument(ctx context.Context, id string) (int, error)
	InsertChunks(ctx context.Context, chunks []DocumentChunk) error
	GetChunksForDocument(ctx context.Context, documentID string) ([]DocumentChunk, error)
}

// VectorIndex holds chunk embeddings and answers filtered similarity
// queries.
type VectorIndex interface {
	Insert(ctx context.Context, chunks []DocumentChunk) error
	Search(ctx context.Context, embedding []float32, topK int, categories []Category, programs []string) ([]VectorMatch, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// QueryEmbedder turns a search query into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// EmbeddingCache is an optional cache for query embeddings.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// Store coordinates the metadata store and the vector index so documents and
// their embeddings stay consistent, and serves similarity search.
type Store struct {
	metadata MetadataStore
	vectors  VectorIndex
	embedder QueryEmbedder
	cache    EmbeddingCache // nil when caching is disabled
	logger   *zap.Logger
}

func NewStore(metadata MetadataStore, vectors VectorIndex, embedder QueryEmbedder, cache EmbeddingCache, logger *zap.Logger) *Store {
	return &Store{
		metadata: metadata,
		vectors:  vectors,
		embedder: embedder,
		cache:    cache,
		logger:   logger,
	}
}

func (s *Store) StoreDocument(ctx context.Context, doc *DocumentMetadata) error {
	return s.metadata.InsertDocument(ctx, doc)
}

// StoreChunks writes chunk rows and their vectors. Metadata rows go first so
// a vector-store failure leaves rows the delete cascade can clean up.
func (s *Store) StoreChunks(ctx context.Context, chunks []DocumentChunk) error {
	if err := s.metadata.InsertChunks(ctx, chunks); err != nil {
		return err
	}
	return s.vectors.Insert(ctx, chunks)
}

func (s *Store) GetDocument(ctx context.Context, id string) (*DocumentMetadata, error) {
	return s.metadata.GetDocument(ctx, id)
}

func (s *Store) FindDocumentByChecksum(ctx context.Context, checksum string) (*DocumentMetadata, error) {
	return s.metadata.FindDocumentByChecksum(ctx, checksum)
}

func (s *Store) ListDocuments(ctx context.Context, category Category) ([]DocumentMetadata, error) {
	return s.metadata.ListDocuments(ctx, category)
}

func (s *Store) GetChunksForDocument(ctx context.Context, documentID string) ([]DocumentChunk, error) {
	return s.metadata.GetChunksForDocument(ctx, documentID)
}

// DeleteDocument removes a document and every trace of it: vectors first,
// then the metadata rows. The returned count is the number of chunks
// removed.
func (s *Store) DeleteDocument(ctx context.Context, id string) (int, error) {
	if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
		return 0, err
	}

	count, err := s.metadata.DeleteDocument(ctx, id)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Document removed from knowledge base",
		zap.String("document_id", id),
		zap.Int("chunks", count),
	)
	return count, nil
}

// Search embeds the query and runs a filtered similarity search. Results
// below params.MinScore are cut after ranking, and each surviving result
// carries its document's metadata.
func (s *Store) Search(ctx context.Context, query string, params SearchParams) ([]SearchResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.vectors.Search(ctx, vector, limit, params.Categories, params.Programs)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]*DocumentMetadata)
	var results []SearchResult
	for _, match := range matches {
		if match.Score < params.MinScore {
			continue
		}

		doc, ok := docs[match.DocumentID]
		if !ok {
			doc, err = s.metadata.GetDocument(ctx, match.DocumentID)
			if err != nil {
				// The vector store can briefly hold entries for a document
				// deleted mid-search; skip them.
				s.logger.Warn("Search hit references missing document",
					zap.String("document_id", match.DocumentID),
					zap.Error(err),
				)
				continue
			}
			docs[match.DocumentID] = doc
		}

		results = append(results, SearchResult{
			Chunk: DocumentChunk{
				ID:         match.ChunkID,
				DocumentID: match.DocumentID,
				Content:    match.Content,
				Metadata: ChunkMetadata{
					Category:   match.Category,
					Program:    match.Program,
					Filename:   match.Filename,
					Page:       match.Page,
					ChunkIndex: match.ChunkIndex,
				},
			},
			Score:    match.Score,
			Document: doc,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}

func (s *Store) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.cache == nil {
		return s.embedder.EmbedQuery(ctx, query)
	}

	hash := utils.Checksum(query)

	cached, found, err := s.cache.GetEmbedding(ctx, hash)
	if err != nil {
		s.logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if found {
		return cached, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.SetEmbedding(cacheCtx, hash, vector); err != nil {
		s.logger.Warn("Embedding cache write failed", zap.Error(err))
	}

	return vector, nil
}
