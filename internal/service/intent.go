package service

import (
	"context"
	"log"
	"strings"

	"formulary/internal/model"
)

const (
	// fallbackConfidenceThreshold is the rule confidence below which the
	// model is consulted
	fallbackConfidenceThreshold = 70

	// llmConfidence is assigned to every accepted model-extracted intent
	llmConfidence = 75
)

// IntentService resolves a query into an intent: rule-based first, model
// fallback when the rules are not confident enough
type IntentService struct {
	aiClient AIClient
}

// NewIntentService creates a new intent service
func NewIntentService(aiClient AIClient) *IntentService {
	return &IntentService{
		aiClient: aiClient,
	}
}

// Resolve classifies the query and, when rule confidence is below the
// threshold, asks the model for a second opinion. Model failures of any
// kind keep the rule-based intent, so Resolve never fails.
func (s *IntentService) Resolve(ctx context.Context, query string) *model.Intent {
	ruleIntent := Classify(query)

	if strings.TrimSpace(query) == "" {
		return ruleIntent
	}

	if ruleIntent.Confidence >= fallbackConfidenceThreshold {
		return ruleIntent
	}

	if s.aiClient == nil || !s.aiClient.IsEnabled() {
		log.Printf("OpenAI is not enabled, keeping rule-based intent. Please set OPENAI_API_KEY environment variable.")
		return ruleIntent
	}

	log.Printf("🤖 Rule confidence %d below threshold %d, consulting model for: %s",
		ruleIntent.Confidence, fallbackConfidenceThreshold, query)

	llmResp, err := s.aiClient.ExtractIntent(ctx, query)
	if err != nil {
		log.Printf("Warning: model intent extraction failed: %v, keeping rule-based intent", err)
		return ruleIntent
	}

	return intentFromLLM(llmResp)
}

// intentFromLLM converts a validated model response into a domain intent.
// Filter values are normalized into their closed domains; anything that
// does not parse was already dropped during validation.
func intentFromLLM(resp *LLMIntentResponse) *model.Intent {
	intent := &model.Intent{
		QueryType:  model.QueryType(resp.QueryType),
		Confidence: llmConfidence,
		Source:     model.SourceLLM,
	}

	if resp.DrugName != nil {
		if name := strings.TrimSpace(*resp.DrugName); name != "" {
			intent.DrugName = &name
		}
	}

	if resp.Filters.DrugStatus != nil {
		if status, ok := model.ParseDrugStatus(*resp.Filters.DrugStatus); ok {
			intent.Filters.DrugStatus = &status
		}
	}
	if resp.Filters.PAMndRequired != nil {
		if pa, ok := model.ParsePARequirement(*resp.Filters.PAMndRequired); ok {
			intent.Filters.PAMndRequired = &pa
		}
	}
	if resp.Filters.Category != nil {
		if cat := strings.TrimSpace(*resp.Filters.Category); cat != "" {
			intent.Filters.Category = &cat
		}
	}
	if resp.Filters.Manufacturer != nil {
		if mfr := strings.TrimSpace(*resp.Filters.Manufacturer); mfr != "" {
			intent.Filters.Manufacturer = &mfr
		}
	}
	if resp.Filters.HCPCS != nil {
		if code := strings.TrimSpace(*resp.Filters.HCPCS); code != "" {
			intent.Filters.HCPCS = &code
		}
	}

	return intent
}
