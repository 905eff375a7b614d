// Package milvus stores chunk embeddings and serves filtered similarity
// search over them.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
	logger         *zap.Logger
}

func NewClient(ctx context.Context, endpoint, collectionName string, vectorDim int, logger *zap.Logger) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		logger:         logger,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// EnsureCollection creates and loads the chunk collection if it does not
// exist yet.
func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return &knowledge.StorageError{Op: "check collection", Err: err}
	}

	if has {
		m.logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Knowledge base chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "category",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "program",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "filename",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "page",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return &knowledge.StorageError{Op: "create collection", Err: err}
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return &knowledge.StorageError{Op: "create index", Err: err}
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return &knowledge.StorageError{Op: "create index", Err: err}
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return &knowledge.StorageError{Op: "load collection", Err: err}
	}

	m.logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

// Insert writes chunk embeddings in one batch and flushes.
func (m *Client) Insert(ctx context.Context, chunks []knowledge.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	contents := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	categories := make([]string, len(chunks))
	programs := make([]string, len(chunks))
	filenames := make([]string, len(chunks))
	pages := make([]int64, len(chunks))
	indexes := make([]int64, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		contents[i] = chunk.Content
		documentIDs[i] = chunk.DocumentID
		categories[i] = string(chunk.Metadata.Category)
		programs[i] = chunk.Metadata.Program
		filenames[i] = chunk.Metadata.Filename
		pages[i] = int64(chunk.Metadata.Page)
		indexes[i] = int64(chunk.Metadata.ChunkIndex)
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("category", categories),
		entity.NewColumnVarChar("program", programs),
		entity.NewColumnVarChar("filename", filenames),
		entity.NewColumnInt64("page", pages),
		entity.NewColumnInt64("chunk_index", indexes),
	)
	if err != nil {
		return &knowledge.StorageError{Op: "insert vectors", Err: err}
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return &knowledge.StorageError{Op: "flush vectors", Err: err}
	}

	m.logger.Debug("Chunks inserted into vector store", zap.Int("count", len(chunks)))

	return nil
}

// Search runs a filtered top-K similarity search. Category and program
// filters restrict the candidate set before similarity ranking, so a match
// outside the filters can never displace one inside them.
func (m *Client) Search(ctx context.Context, embedding []float32, topK int, categories []knowledge.Category, programs []string) ([]knowledge.VectorMatch, error) {
	expr := buildFilterExpr(categories, programs)

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, &knowledge.StorageError{Op: "vector search", Err: err}
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "content", "document_id", "category", "program", "filename", "page", "chunk_index"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, &knowledge.StorageError{Op: "vector search", Err: err}
	}

	var matches []knowledge.VectorMatch
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			match := knowledge.VectorMatch{Score: float64(sr.Scores[i])}

			if v, err := sr.Fields.GetColumn("chunk_id").Get(i); err == nil {
				match.ChunkID, _ = v.(string)
			}
			if v, err := sr.Fields.GetColumn("content").Get(i); err == nil {
				match.Content, _ = v.(string)
			}
			if v, err := sr.Fields.GetColumn("document_id").Get(i); err == nil {
				match.DocumentID, _ = v.(string)
			}
			if v, err := sr.Fields.GetColumn("category").Get(i); err == nil {
				if category, ok := v.(string); ok {
					match.Category = knowledge.Category(category)
				}
			}
			if v, err := sr.Fields.GetColumn("program").Get(i); err == nil {
				match.Program, _ = v.(string)
			}
			if v, err := sr.Fields.GetColumn("filename").Get(i); err == nil {
				match.Filename, _ = v.(string)
			}
			if v, err := sr.Fields.GetColumn("page").Get(i); err == nil {
				if page, ok := v.(int64); ok {
					match.Page = int(page)
				}
			}
			if v, err := sr.Fields.GetColumn("chunk_index").Get(i); err == nil {
				if idx, ok := v.(int64); ok {
					match.ChunkIndex = int(idx)
				}
			}

			matches = append(matches, match)
		}
	}

	m.logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
		zap.String("filter", expr),
	)

	return matches, nil
}

// DeleteByDocument removes all vectors belonging to a document.
func (m *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s"`, escapeExpr(documentID))

	err := m.client.Delete(ctx, m.collectionName, "", expr)
	if err != nil {
		return &knowledge.StorageError{Op: "delete vectors", Err: err}
	}

	m.logger.Debug("Vectors deleted", zap.String("document_id", documentID))
	return nil
}

func buildFilterExpr(categories []knowledge.Category, programs []string) string {
	var clauses []string

	if len(categories) > 0 {
		quoted := make([]string, len(categories))
		for i, c := range categories {
			quoted[i] = fmt.Sprintf("%q", escapeExpr(string(c)))
		}
		clauses = append(clauses, fmt.Sprintf("category in [%s]", strings.Join(quoted, ", ")))
	}

	if len(programs) > 0 {
		quoted := make([]string, len(programs))
		for i, p := range programs {
			quoted[i] = fmt.Sprintf("%q", escapeExpr(p))
		}
		clauses = append(clauses, fmt.Sprintf("program in [%s]", strings.Join(quoted, ", ")))
	}

	return strings.Join(clauses, " && ")
}

func escapeExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
