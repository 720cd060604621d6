package handler

import (
	"net/http"
	"time"

	"formulary/internal/model"
	"formulary/internal/repository"
	"formulary/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles index maintenance HTTP requests
type AdminHandler struct {
	queryService *service.QueryService
	nameIndex    *repository.NameIndex
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(queryService *service.QueryService, nameIndex *repository.NameIndex) *AdminHandler {
	return &AdminHandler{
		queryService: queryService,
		nameIndex:    nameIndex,
	}
}

// RebuildIndex handles POST /api/v1/index/rebuild
func (h *AdminHandler) RebuildIndex(c *gin.Context) {
	if h.nameIndex == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Autocomplete index is not configured"})
		return
	}

	start := time.Now()

	names, err := h.queryService.DrugNames(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list drug names: " + err.Error()})
		return
	}

	indexed, err := h.nameIndex.Rebuild(names)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rebuild index: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.RebuildResponse{
		Indexed: indexed,
		Took:    time.Since(start).Milliseconds(),
	})
}
