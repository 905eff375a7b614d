package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/tcredex/knowledge-api/internal/metrics"
	"github.com/tcredex/knowledge-api/internal/retriever"
)

type ContextHandler struct {
	retriever *retriever.Retriever
	logger    *zap.Logger
}

func NewContextHandler(r *retriever.Retriever, logger *zap.Logger) *ContextHandler {
	return &ContextHandler{retriever: r, logger: logger}
}

// HandleContext builds a citation-annotated context block for a chat query.
// A query with no relevant knowledge returns an empty context, not an error.
func (h *ContextHandler) HandleContext(c *fiber.Ctx) error {
	var req struct {
		Query                string   `json:"query"`
		MaxChunks            int      `json:"max_chunks"`
		MinScore             *float64 `json:"min_score"`
		IncludeAllCategories bool     `json:"include_all_categories"`
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

	opts := retriever.DefaultOptions()
	if req.MaxChunks > 0 {
		opts.MaxChunks = req.MaxChunks
	}
	// An explicit 0 disables the relevance floor; an absent field keeps the
	// default.
	if req.MinScore != nil {
		opts.MinScore = *req.MinScore
	}
	opts.IncludeAllCategories = req.IncludeAllCategories

	ragCtx := h.retriever.Retrieve(c.Context(), req.Query, opts)

	metrics.SearchResultsCount.Observe(float64(len(ragCtx.Chunks)))

	return c.JSON(fiber.Map{
		"context_text": ragCtx.ContextText,
		"citations":    ragCtx.Citations,
		"chunks_used":  len(ragCtx.Chunks),
	})
}
