package handler

import (
	"net/http"

	"formulary/internal/model"
	"formulary/internal/service"

	"github.com/gin-gonic/gin"
)

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	queryService *service.QueryService
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(queryService *service.QueryService) *FeedbackHandler {
	return &FeedbackHandler{
		queryService: queryService,
	}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// Validate action
	validActions := map[string]bool{
		"helpful":     true,
		"not_helpful": true,
		"flagged":     true,
	}

	if !validActions[req.Action] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action. Must be one of: helpful, not_helpful, flagged"})
		return
	}

	found, err := h.queryService.Feedback(c.Request.Context(), req.QueryID, req.Action)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback: " + err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Query not found"})
		return
	}

	response := model.FeedbackResponse{
		Success: true,
		Message: "Feedback recorded",
	}

	c.JSON(http.StatusOK, response)
}
