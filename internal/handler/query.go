package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"formulary/internal/model"
	"formulary/internal/service"

	"github.com/gin-gonic/gin"
)

// QueryHandler handles natural language query HTTP requests
type QueryHandler struct {
	queryService   *service.QueryService
	minQueryLength int
	maxQueryLength int
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queryService *service.QueryService, minQueryLength, maxQueryLength int) *QueryHandler {
	return &QueryHandler{
		queryService:   queryService,
		minQueryLength: minQueryLength,
		maxQueryLength: maxQueryLength,
	}
}

// Query handles POST /api/v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if !h.validateQuery(c, &req) {
		return
	}

	response, err := h.queryService.Query(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// QueryStream handles POST /api/v1/query/stream - SSE streaming query
func (h *QueryHandler) QueryStream(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if !h.validateQuery(c, &req) {
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Transfer-Encoding", "chunked")

	// Create flusher for SSE
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	// Send initial event
	sendSSE(c, "start", map[string]any{"query": req.Query})
	flusher.Flush()

	// Run the pipeline, streaming answer tokens as they arrive
	response, err := h.queryService.QueryStream(c.Request.Context(), &req, func(content string) error {
		sendSSE(c, "chunk", map[string]any{"content": content})
		flusher.Flush()
		return nil
	})

	if err != nil {
		sendSSE(c, "error", map[string]any{"error": err.Error()})
		flusher.Flush()
		return
	}

	// Send final results
	sendSSE(c, "results", response)
	flusher.Flush()

	// Send done event
	sendSSE(c, "done", nil)
	flusher.Flush()
}

// validateQuery enforces query length bounds, writing the error response
// itself when validation fails
func (h *QueryHandler) validateQuery(c *gin.Context, req *model.QueryRequest) bool {
	query := strings.TrimSpace(req.Query)
	if len(query) < h.minQueryLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Query must be at least %d characters", h.minQueryLength),
		})
		return false
	}
	if len(query) > h.maxQueryLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Query must be at most %d characters", h.maxQueryLength),
		})
		return false
	}
	return true
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, string(jsonData))
	} else {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
	}
}
