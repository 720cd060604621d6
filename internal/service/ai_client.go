package service

import (
	"context"

	"formulary/internal/model"
)

// AIClient is the interface for text-completion providers
type AIClient interface {
	// ExtractIntent parses a formulary question into a structured intent
	// candidate. One attempt, no retries; the caller decides what a
	// failure means.
	ExtractIntent(ctx context.Context, query string) (*LLMIntentResponse, error)

	// GenerateAnswer produces a natural language answer grounded in the
	// supplied results
	GenerateAnswer(ctx context.Context, query string, intent *model.Intent, results []model.AggregatedDrug) (string, error)

	// GenerateAnswerStream streams the answer; the callback receives each
	// content chunk. Returns the full accumulated answer.
	GenerateAnswerStream(ctx context.Context, query string, intent *model.Intent, results []model.AggregatedDrug, callback func(content string) error) (string, error)

	// IsEnabled returns whether the client is configured and ready
	IsEnabled() bool
}

// StreamChunk represents a generic streaming response chunk
type StreamChunk struct {
	// Regular content (always present in streaming)
	Content string

	// Thinking/reasoning content (provider-specific, e.g., DeepSeek)
	ThinkingContent string

	// Role (assistant, user, system)
	Role string

	// Whether this is the final chunk
	Done bool

	// Provider-specific metadata
	Metadata map[string]interface{}
}

// LLMIntentResponse is the JSON shape the model must return for intent
// extraction
type LLMIntentResponse struct {
	QueryType string           `json:"query_type"`
	DrugName  *string          `json:"drug_name"`
	Filters   LLMIntentFilters `json:"filters"`
}

// LLMIntentFilters mirrors the intent filter keys as loose strings; values
// are validated and narrowed to their domains before use
type LLMIntentFilters struct {
	DrugStatus    *string `json:"drug_status"`
	PAMndRequired *string `json:"pa_mnd_required"`
	Category      *string `json:"category"`
	Manufacturer  *string `json:"manufacturer"`
	HCPCS         *string `json:"hcpcs"`
}

// Ensure OpenAIClient implements AIClient
var _ AIClient = (*OpenAIClient)(nil)
