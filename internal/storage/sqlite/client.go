// Package sqlite persists document and chunk metadata. Vector payloads live
// in Milvus; this store is the system of record for what was ingested.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/knowledge"
)

type Client struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewClient(dbPath string, logger *zap.Logger) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		category TEXT NOT NULL,
		program TEXT,
		title TEXT,
		source TEXT,
		page_count INTEGER DEFAULT 0,
		checksum TEXT NOT NULL,
		uploaded_by TEXT,
		uploaded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_category ON knowledge_documents(category);
	CREATE INDEX IF NOT EXISTS idx_documents_checksum ON knowledge_documents(checksum);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		page INTEGER DEFAULT 0,
		section TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES knowledge_documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON knowledge_chunks(document_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	c.logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *knowledge.DocumentMetadata) error {
	query := `
		INSERT INTO knowledge_documents (id, filename, category, program, title, source, page_count, checksum, uploaded_by, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.Filename,
		string(doc.Category),
		doc.Program,
		doc.Title,
		doc.Source,
		doc.PageCount,
		doc.Checksum,
		doc.UploadedBy,
		doc.UploadedAt.Unix(),
	)

	if err != nil {
		return &knowledge.StorageError{Op: "insert document", Err: err}
	}

	c.logger.Debug("Document inserted",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
	)
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*knowledge.DocumentMetadata, error) {
	query := `
		SELECT id, filename, category, program, title, source, page_count, checksum, uploaded_by, uploaded_at
		FROM knowledge_documents
		WHERE id = ?
	`

	doc, err := scanDocument(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, knowledge.ErrNotFound
		}
		return nil, &knowledge.StorageError{Op: "get document", Err: err}
	}
	return doc, nil
}

// FindDocumentByChecksum returns the document with a matching content
// checksum, or nil when the content has not been ingested before.
func (c *Client) FindDocumentByChecksum(ctx context.Context, checksum string) (*knowledge.DocumentMetadata, error) {
	query := `
		SELECT id, filename, category, program, title, source, page_count, checksum, uploaded_by, uploaded_at
		FROM knowledge_documents
		WHERE checksum = ?
		LIMIT 1
	`

	doc, err := scanDocument(c.db.QueryRowContext(ctx, query, checksum))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &knowledge.StorageError{Op: "find document by checksum", Err: err}
	}
	return doc, nil
}

// ListDocuments returns document metadata, newest first. An empty category
// lists everything.
func (c *Client) ListDocuments(ctx context.Context, category knowledge.Category) ([]knowledge.DocumentMetadata, error) {
	query := `
		SELECT id, filename, category, program, title, source, page_count, checksum, uploaded_by, uploaded_at
		FROM knowledge_documents
	`
	args := []any{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY uploaded_at DESC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &knowledge.StorageError{Op: "list documents", Err: err}
	}
	defer rows.Close()

	var docs []knowledge.DocumentMetadata
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, &knowledge.StorageError{Op: "list documents", Err: err}
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &knowledge.StorageError{Op: "list documents", Err: err}
	}

	return docs, nil
}

// DeleteDocument removes the document row; chunk rows go with it through the
// foreign key cascade. The returned count is the number of chunks deleted.
func (c *Client) DeleteDocument(ctx context.Context, id string) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &knowledge.StorageError{Op: "delete document", Err: err}
	}
	defer tx.Rollback()

	var chunkCount int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks WHERE document_id = ?`, id).Scan(&chunkCount)
	if err != nil {
		return 0, &knowledge.StorageError{Op: "delete document", Err: err}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = ?`, id)
	if err != nil {
		return 0, &knowledge.StorageError{Op: "delete document", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &knowledge.StorageError{Op: "delete document", Err: err}
	}
	if affected == 0 {
		return 0, knowledge.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, &knowledge.StorageError{Op: "delete document", Err: err}
	}

	c.logger.Info("Document deleted",
		zap.String("document_id", id),
		zap.Int("chunks", chunkCount),
	)
	return chunkCount, nil
}

// InsertChunks stores all chunk rows for a document in one transaction.
func (c *Client) InsertChunks(ctx context.Context, chunks []knowledge.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &knowledge.StorageError{Op: "insert chunks", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_chunks (id, document_id, chunk_index, content, page, section, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &knowledge.StorageError{Op: "insert chunks", Err: err}
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(
			ctx,
			chunk.ID,
			chunk.DocumentID,
			chunk.Metadata.ChunkIndex,
			chunk.Content,
			chunk.Metadata.Page,
			chunk.Metadata.Section,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return &knowledge.StorageError{Op: "insert chunks", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &knowledge.StorageError{Op: "insert chunks", Err: err}
	}

	return nil
}

// GetChunksForDocument returns a document's chunks ordered by index.
// Embeddings are not stored here and come back nil.
func (c *Client) GetChunksForDocument(ctx context.Context, documentID string) ([]knowledge.DocumentChunk, error) {
	doc, err := c.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, document_id, chunk_index, content, page, section, created_at
		FROM knowledge_chunks
		WHERE document_id = ?
		ORDER BY chunk_index ASC
	`

	rows, err := c.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, &knowledge.StorageError{Op: "get chunks", Err: err}
	}
	defer rows.Close()

	var chunks []knowledge.DocumentChunk
	for rows.Next() {
		var chunk knowledge.DocumentChunk
		var createdAt int64

		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Metadata.ChunkIndex,
			&chunk.Content,
			&chunk.Metadata.Page,
			&chunk.Metadata.Section,
			&createdAt,
		)
		if err != nil {
			return nil, &knowledge.StorageError{Op: "get chunks", Err: err}
		}

		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunk.Metadata.Category = doc.Category
		chunk.Metadata.Program = doc.Program
		chunk.Metadata.Filename = doc.Filename
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, &knowledge.StorageError{Op: "get chunks", Err: err}
	}

	return chunks, nil
}

// CountChunks returns the number of chunk rows for a document.
func (c *Client) CountChunks(ctx context.Context, documentID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks WHERE document_id = ?`, documentID).Scan(&count)
	if err != nil {
		return 0, &knowledge.StorageError{Op: "count chunks", Err: err}
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*knowledge.DocumentMetadata, error) {
	var doc knowledge.DocumentMetadata
	var category string
	var uploadedAt int64

	err := row.Scan(
		&doc.ID,
		&doc.Filename,
		&category,
		&doc.Program,
		&doc.Title,
		&doc.Source,
		&doc.PageCount,
		&doc.Checksum,
		&doc.UploadedBy,
		&uploadedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Category = knowledge.Category(category)
	doc.UploadedAt = time.Unix(uploadedAt, 0)
	return &doc, nil
}
