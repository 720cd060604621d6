package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"formulary/internal/model"
	"formulary/internal/repository"
	"formulary/internal/service"

	"github.com/gin-gonic/gin"
)

// DrugsHandler handles drug lookup HTTP requests
type DrugsHandler struct {
	queryService *service.QueryService
	nameIndex    *repository.NameIndex
}

// NewDrugsHandler creates a new drugs handler. nameIndex may be nil, in which
// case autocomplete falls back to database prefix queries.
func NewDrugsHandler(queryService *service.QueryService, nameIndex *repository.NameIndex) *DrugsHandler {
	return &DrugsHandler{
		queryService: queryService,
		nameIndex:    nameIndex,
	}
}

// GetDrug handles GET /api/v1/drugs/:name
func (h *DrugsHandler) GetDrug(c *gin.Context) {
	name := c.Param("name")

	response, err := h.queryService.DrugStatus(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get drug: " + err.Error()})
		return
	}

	if response.Drug == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Drug '%s' not found", name)})
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetAlternatives handles GET /api/v1/drugs/:name/alternatives
func (h *DrugsHandler) GetAlternatives(c *gin.Context) {
	name := c.Param("name")

	status := model.StatusPreferred
	if v := c.Query("drug_status"); v != "" {
		parsed, ok := model.ParseDrugStatus(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid drug_status. Must be one of: preferred, non_preferred, not_listed",
			})
			return
		}
		status = parsed
	}

	response, err := h.queryService.Alternatives(c.Request.Context(), name, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alternatives: " + err.Error()})
		return
	}

	if response == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Drug '%s' not found", name)})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Filter handles POST /api/v1/filter
func (h *DrugsHandler) Filter(c *gin.Context) {
	var req model.FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	response, err := h.queryService.ListDrugs(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Filter failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Categories handles GET /api/v1/categories
func (h *DrugsHandler) Categories(c *gin.Context) {
	response, err := h.queryService.Categories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get categories: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Autocomplete handles GET /api/v1/autocomplete
func (h *DrugsHandler) Autocomplete(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query must be at least 2 characters"})
		return
	}

	limit := intQueryParam(c, "limit", 10)
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	var completions []string
	var err error
	if h.nameIndex != nil {
		completions, err = h.nameIndex.Autocomplete(q, limit)
		if err != nil {
			log.Printf("Warning: name index search failed: %v, falling back to database", err)
			completions, err = h.queryService.CompleteName(c.Request.Context(), q, limit)
		}
	} else {
		completions, err = h.queryService.CompleteName(c.Request.Context(), q, limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Autocomplete failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.AutocompleteResponse{
		Query:       q,
		Completions: completions,
	})
}

// Suggestions handles GET /api/v1/suggestions/:query
func (h *DrugsHandler) Suggestions(c *gin.Context) {
	query := c.Param("query")

	threshold := intQueryParam(c, "threshold", 70)
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 100 {
		threshold = 100
	}

	limit := intQueryParam(c, "limit", 5)
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}

	response, err := h.queryService.Suggest(c.Request.Context(), query, threshold, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Suggestions failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// intQueryParam reads an integer query parameter, returning the default when
// absent or unparsable
func intQueryParam(c *gin.Context, name string, defaultValue int) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
