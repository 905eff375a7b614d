package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/extract"
	"github.com/tcredex/knowledge-api/internal/ingestion"
	"github.com/tcredex/knowledge-api/internal/knowledge"
	"github.com/tcredex/knowledge-api/internal/metrics"
)

type KnowledgeHandler struct {
	pipeline  *ingestion.Pipeline
	store     *knowledge.Store
	extractor *extract.Registry
	logger    *zap.Logger
}

func NewKnowledgeHandler(pipeline *ingestion.Pipeline, store *knowledge.Store, extractor *extract.Registry, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		pipeline:  pipeline,
		store:     store,
		extractor: extractor,
		logger:    logger,
	}
}

// HandleIngest accepts a multipart upload and runs it through the ingestion
// pipeline. Form fields: file (one or more), category, program, title,
// source.
func (h *KnowledgeHandler) HandleIngest(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid multipart form",
		})
	}

	files := form.File["file"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}

	category := knowledge.Category(c.FormValue("category", string(knowledge.CategoryGeneral)))
	if !category.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown category: " + string(category),
		})
	}

	for _, file := range files {
		if !h.extractor.Supported(detectMimeType(file)) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported file type: " + file.Filename,
			})
		}
	}

	var inputs []ingestion.Input
	for _, file := range files {
		content, err := readUpload(file)
		if err != nil {
			h.logger.Error("Failed to read upload",
				zap.String("filename", file.Filename),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to read uploaded file",
			})
		}

		inputs = append(inputs, ingestion.Input{
			Filename:   file.Filename,
			MimeType:   detectMimeType(file),
			Content:    content,
			Category:   category,
			Program:    c.FormValue("program"),
			Title:      c.FormValue("title"),
			Source:     c.FormValue("source"),
			UploadedBy: c.FormValue("uploaded_by"),
		})
	}

	start := time.Now()
	results := h.pipeline.IngestAll(c.Context(), inputs)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	succeeded := 0
	for _, result := range results {
		metrics.IngestTotal.WithLabelValues(string(category), result.Status).Inc()
		if result.Status == knowledge.StatusSuccess {
			succeeded++
			metrics.ChunksCreated.Add(float64(result.ChunksCreated))
		}
	}

	status := fiber.StatusOK
	if succeeded == 0 {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{
		"results": results,
	})
}

// HandleEstimate prices an upload without ingesting it.
func (h *KnowledgeHandler) HandleEstimate(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}

	mimeType := detectMimeType(file)
	if !h.extractor.Supported(mimeType) {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "Unsupported file type: " + file.Filename,
		})
	}

	content, err := readUpload(file)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	estimate, err := h.pipeline.EstimateCost(ingestion.Input{
		Filename: file.Filename,
		MimeType: mimeType,
		Content:  content,
		Category: knowledge.Category(c.FormValue("category", string(knowledge.CategoryGeneral))),
	})
	if err != nil {
		h.logger.Error("Failed to estimate cost", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to estimate cost",
		})
	}

	return c.JSON(estimate)
}

// HandleReingest replaces an existing document with fresh uploaded content.
// The old document and its vectors are removed first; the replacement gets a
// new document id.
func (h *KnowledgeHandler) HandleReingest(c *fiber.Ctx) error {
	id := c.Params("id")

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}

	mimeType := detectMimeType(file)
	if !h.extractor.Supported(mimeType) {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "Unsupported file type: " + file.Filename,
		})
	}

	existing, err := h.store.GetDocument(c.Context(), id)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		h.logger.Error("Failed to load document for reingest", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reingest document",
		})
	}

	content, err := readUpload(file)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	// Unspecified fields carry over from the document being replaced.
	input := ingestion.Input{
		Filename:   file.Filename,
		MimeType:   mimeType,
		Content:    content,
		Category:   knowledge.Category(c.FormValue("category", string(existing.Category))),
		Program:    c.FormValue("program", existing.Program),
		Title:      c.FormValue("title", existing.Title),
		Source:     c.FormValue("source", existing.Source),
		UploadedBy: c.FormValue("uploaded_by", existing.UploadedBy),
	}

	result, err := h.pipeline.Reingest(c.Context(), id, input)
	metrics.IngestTotal.WithLabelValues(string(input.Category), result.Status).Inc()
	if err != nil {
		h.logger.Error("Reingest failed",
			zap.String("document_id", id),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}

	metrics.ChunksCreated.Add(float64(result.ChunksCreated))
	return c.JSON(result)
}

func (h *KnowledgeHandler) HandleListDocuments(c *fiber.Ctx) error {
	category := knowledge.Category(c.Query("category"))
	if category != "" && !category.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown category: " + string(category),
		})
	}

	docs, err := h.store.ListDocuments(c.Context(), category)
	if err != nil {
		h.logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	metrics.DocumentsTotal.Set(float64(len(docs)))

	return c.JSON(fiber.Map{
		"documents": documentsJSON(docs),
		"count":     len(docs),
	})
}

func (h *KnowledgeHandler) HandleGetDocument(c *fiber.Ctx) error {
	id := c.Params("id")

	doc, err := h.store.GetDocument(c.Context(), id)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		h.logger.Error("Failed to get document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document",
		})
	}

	chunks, err := h.store.GetChunksForDocument(c.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get document chunks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document",
		})
	}

	return c.JSON(fiber.Map{
		"document":    documentJSON(*doc),
		"chunk_count": len(chunks),
	})
}

func (h *KnowledgeHandler) HandleDeleteDocument(c *fiber.Ctx) error {
	id := c.Params("id")

	count, err := h.store.DeleteDocument(c.Context(), id)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		h.logger.Error("Failed to delete document",
			zap.String("document_id", id),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.JSON(fiber.Map{
		"document_id":    id,
		"deleted_chunks": count,
	})
}

func documentJSON(doc knowledge.DocumentMetadata) fiber.Map {
	return fiber.Map{
		"id":          doc.ID,
		"filename":    doc.Filename,
		"category":    doc.Category,
		"program":     doc.Program,
		"title":       doc.Title,
		"source":      doc.Source,
		"page_count":  doc.PageCount,
		"uploaded_at": doc.UploadedAt,
		"uploaded_by": doc.UploadedBy,
	}
}

func documentsJSON(docs []knowledge.DocumentMetadata) []fiber.Map {
	out := make([]fiber.Map, len(docs))
	for i, doc := range docs {
		out[i] = documentJSON(doc)
	}
	return out
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// detectMimeType prefers the declared Content-Type, falling back to the file
// extension for clients that upload everything as octet-stream.
func detectMimeType(file *multipart.FileHeader) string {
	declared := file.Header.Get("Content-Type")
	if declared != "" && declared != "application/octet-stream" {
		if idx := strings.Index(declared, ";"); idx >= 0 {
			declared = strings.TrimSpace(declared[:idx])
		}
		return declared
	}

	switch strings.ToLower(filepath.Ext(file.Filename)) {
	case ".txt":
		return "text/plain"
	case ".md", ".markdown":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".html", ".htm":
		return "text/html"
	default:
		return declared
	}
}
