package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-digest/app/ai"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/sources"
)

const (
	defaultItemLimit   = 50
	maxItemLimit       = 200
	defaultDigestLimit = 30
	maxDigestLimit     = 365
)

func NewHandler(sourceService SourceService, itemRepo database.ItemRepository,
	summaryService SummaryService, digestService DigestService, version string) *Handler {
	return &Handler{
		sourceService:  sourceService,
		itemRepo:       itemRepo,
		summaryService: summaryService,
		digestService:  digestService,
		version:        version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if sourceCount, err := h.sourceService.Count(c.Request.Context()); err == nil {
		health["sources"] = sourceCount
	}

	if itemCount, err := h.itemRepo.GetItemCount(c.Request.Context()); err == nil {
		health["items"] = itemCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListSources(c *gin.Context) {
	list, err := h.sourceService.List(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if list == nil {
		list = []database.Source{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": list,
		"total":   len(list),
	})
}

func (h *Handler) CreateSource(c *gin.Context) {
	var input sources.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	source, err := h.sourceService.Create(c.Request.Context(), input)
	if err != nil {
		h.sourceError(c, "create_source", err)
		return
	}

	c.JSON(http.StatusCreated, source)
}

func (h *Handler) UpdateSource(c *gin.Context) {
	var patch database.SourcePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	source, err := h.sourceService.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.sourceError(c, "update_source", err)
		return
	}

	c.JSON(http.StatusOK, source)
}

func (h *Handler) DeleteSource(c *gin.Context) {
	if err := h.sourceService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.sourceError(c, "delete_source", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ToggleSource(c *gin.Context) {
	source, err := h.sourceService.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sourceError(c, "toggle_source", err)
		return
	}

	c.JSON(http.StatusOK, source)
}

func (h *Handler) FetchSource(c *gin.Context) {
	id := c.Param("id")

	inserted, err := h.sourceService.FetchNow(c.Request.Context(), id)
	if errors.Is(err, sources.ErrSourceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to fetch source", "id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch source", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}

func (h *Handler) SeedSources(c *gin.Context) {
	inserted, err := h.sourceService.Seed(c.Request.Context())
	if err != nil {
		slog.Error("Failed to seed sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to seed sources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}

func (h *Handler) ListItems(c *gin.Context) {
	limit, ok := parseLimit(c, defaultItemLimit, maxItemLimit)
	if !ok {
		return
	}

	items, err := h.itemRepo.ListItems(c.Request.Context(), c.Query("source_id"), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if items == nil {
		items = []database.Item{}
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) GetItem(c *gin.Context) {
	id := c.Param("id")

	item, err := h.itemRepo.GetItem(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) GetSummary(c *gin.Context) {
	id := c.Param("id")

	summary, err := h.summaryService.Get(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_summary", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Summary not found"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) SummarizeItem(c *gin.Context) {
	id := c.Param("id")

	summary, err := h.summaryService.Summarize(c.Request.Context(), id)
	if err != nil {
		var reqErr *ai.RequestError
		switch {
		case errors.Is(err, ai.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Summarization is not configured"})
		case errors.As(err, &reqErr):
			slog.Error("AI request failed", "item_id", id, "status", reqErr.StatusCode)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Summarization failed", "status": reqErr.StatusCode})
		default:
			slog.Error("Failed to summarize item", "item_id", id, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Summarization failed"})
		}
		return
	}

	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListDigests(c *gin.Context) {
	limit, ok := parseLimit(c, defaultDigestLimit, maxDigestLimit)
	if !ok {
		return
	}

	digests, err := h.digestService.List(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_digests", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if digests == nil {
		digests = []database.Digest{}
	}

	c.JSON(http.StatusOK, gin.H{
		"digests": digests,
		"total":   len(digests),
	})
}

func (h *Handler) GetDigest(c *gin.Context) {
	date := c.Param("date")

	d, err := h.digestService.Get(c.Request.Context(), date)
	if errors.Is(err, digest.ErrInvalidDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_digest", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Digest not found"})
		return
	}

	c.JSON(http.StatusOK, d)
}

func (h *Handler) RunDigest(c *gin.Context) {
	d, err := h.digestService.Run(c.Request.Context(), c.Query("date"))
	if errors.Is(err, digest.ErrInvalidDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Failed to compile digest", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compile digest"})
		return
	}

	c.JSON(http.StatusOK, d)
}

func (h *Handler) sourceError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, sources.ErrInvalidSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, sources.ErrSourceExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sources.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
	default:
		slog.Error("Database error", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	}
}

func parseLimit(c *gin.Context, def, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}

	if limit > max {
		limit = max
	}
	return limit, true
}
