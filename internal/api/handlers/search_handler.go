package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/knowledge"
	"github.com/tcredex/knowledge-api/internal/metrics"
)

type SearchHandler struct {
	store  *knowledge.Store
	logger *zap.Logger
}

func NewSearchHandler(store *knowledge.Store, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{store: store, logger: logger}
}

// HandleSearch runs a raw similarity search with explicit filters, bypassing
// query classification.
func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var req struct {
		Query      string   `json:"query"`
		Categories []string `json:"categories"`
		Programs   []string `json:"programs"`
		Limit      int      `json:"limit"`
		MinScore   float64  `json:"min_score"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	var categories []knowledge.Category
	for _, raw := range req.Categories {
		category := knowledge.Category(raw)
		if !category.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown category: " + raw,
			})
		}
		categories = append(categories, category)
	}

	start := time.Now()
	results, err := h.store.Search(c.Context(), req.Query, knowledge.SearchParams{
		Categories: categories,
		Programs:   req.Programs,
		Limit:      req.Limit,
		MinScore:   req.MinScore,
	})
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SearchTotal.WithLabelValues("error").Inc()
		h.logger.Error("Search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	metrics.SearchTotal.WithLabelValues("success").Inc()
	metrics.SearchResultsCount.Observe(float64(len(results)))

	return c.JSON(fiber.Map{
		"results": searchResultsJSON(results),
		"count":   len(results),
	})
}

func searchResultsJSON(results []knowledge.SearchResult) []fiber.Map {
	out := make([]fiber.Map, len(results))
	for i, result := range results {
		entry := fiber.Map{
			"chunk_id":    result.Chunk.ID,
			"document_id": result.Chunk.DocumentID,
			"content":     result.Chunk.Content,
			"score":       result.Score,
			"category":    result.Chunk.Metadata.Category,
			"program":     result.Chunk.Metadata.Program,
			"filename":    result.Chunk.Metadata.Filename,
			"page":        result.Chunk.Metadata.Page,
			"chunk_index": result.Chunk.Metadata.ChunkIndex,
		}
		if result.Document != nil {
			entry["document_title"] = result.Document.Title
		}
		out[i] = entry
	}
	return out
}
