package handlers

import (
	"net/http"

	"realtorvoice/internal/models"

	"github.com/gin-gonic/gin"
)

// SearchProperties proxies a listing search to the MLS
func (h *Handler) SearchProperties(c *gin.Context) {
	var req models.PropertySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid search criteria")
		return
	}

	properties, err := h.Properties.Search(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": properties, "count": len(properties)})
}

func (h *Handler) ListSearches(c *gin.Context) {
	searches, err := h.Properties.ListSearches(c.Request.Context(), userID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"searches": searches})
}

func (h *Handler) SaveSearch(c *gin.Context) {
	var req models.SaveSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	search, err := h.Properties.SaveSearch(c.Request.Context(), userID(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, search)
}

func (h *Handler) DeleteSearch(c *gin.Context) {
	if err := h.Properties.DeleteSearch(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
