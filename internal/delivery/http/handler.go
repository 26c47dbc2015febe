package http

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/foodbase/etl/internal/domain"
	"github.com/gin-gonic/gin"
)

// FoodSearcher answers food searches
type FoodSearcher interface {
	Search(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	searcher FoodSearcher
}

// NewHandler creates a new HTTP handler. A nil searcher makes the search
// endpoint answer 501.
func NewHandler(searcher FoodSearcher) *Handler {
	return &Handler{searcher: searcher}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "foodetl-search",
		"version": "1.0.0",
	})
}

// SearchFoods handles food search requests
func (h *Handler) SearchFoods(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "Food search not configured",
		})
		return
	}

	var request domain.SearchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	response, err := h.searcher.Search(c.Request.Context(), &request)
	if err != nil {
		status, message := errorResponse(err)
		if status >= http.StatusInternalServerError {
			log.Printf("[HANDLER] Search %q failed: %v", request.Query, err)
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, response)
}

// errorResponse maps a search error to a status code and client-facing message
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrFoodNotFound):
		return http.StatusNotFound, "No matching foods found"
	case errors.Is(err, domain.ErrEmbeddingFailure):
		return http.StatusBadGateway, "Embedding service temporarily unavailable"
	case errors.Is(err, domain.ErrVectorStoreFailure):
		return http.StatusBadGateway, "Vector store temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Search timed out"
	}
	return http.StatusInternalServerError, "Internal server error"
}
