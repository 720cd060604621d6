package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"formulary/internal/config"
	"formulary/internal/model"
	"formulary/internal/utils"
)

// intentSchemaJSON is the structural contract for model intent output.
// query_type outside the enum is a hard failure; filter VALUES are checked
// separately so a bad value drops the filter instead of the whole response.
const intentSchemaJSON = `{
	"type": "object",
	"required": ["query_type", "drug_name", "filters"],
	"properties": {
		"query_type": {
			"type": "string",
			"enum": ["drug_status", "alternatives", "list_filter"]
		},
		"drug_name": {"type": ["string", "null"]},
		"filters": {
			"type": "object",
			"properties": {
				"drug_status":     {"type": ["string", "null"]},
				"pa_mnd_required": {"type": ["string", "null"]},
				"category":        {"type": ["string", "null"]},
				"manufacturer":    {"type": ["string", "null"]},
				"hcpcs":           {"type": ["string", "null"]}
			},
			"additionalProperties": false
		}
	}
}`

const intentSystemPrompt = `You are a query parser for a drug formulary database. Parse the user's question into structured JSON.

The formulary has these fields:
- drug_name: name of the drug
- category: therapeutic category (e.g. Oncology, Immunology, Rheumatology)
- drug_status: "preferred" or "non-preferred"
- pa_mnd_required: "yes" or "no" (prior authorization / medical necessity determination)
- hcpcs: billing code
- manufacturer: drug manufacturer

Classify the question as ONE of:
- "drug_status": asking about a specific drug's status, PA requirement, or details
- "alternatives": asking for alternatives or substitutes to a specific drug
- "list_filter": asking to list or count drugs matching criteria

STRICT RULES:
1. Respond with ONLY valid JSON, no other text, no trailing commas.
2. NEVER invent drug names or categories that are not in the question.
3. The drug_status filter value must be exactly "preferred" or "non-preferred" if present, otherwise null.
4. The pa_mnd_required filter value must be exactly "yes" or "no" if present, otherwise null.
5. If the question names no specific drug, use null for drug_name.
6. "generic" refers to the manufacturer, not a category.

Respond in this exact JSON format:
{"query_type": "drug_status", "drug_name": "Humira", "filters": {"drug_status": null, "pa_mnd_required": null, "category": null, "manufacturer": null, "hcpcs": null}}

Examples:
Question: "Is Keytruda covered as preferred?"
Response: {"query_type": "drug_status", "drug_name": "Keytruda", "filters": {"drug_status": null, "pa_mnd_required": null, "category": null, "manufacturer": null, "hcpcs": null}}

Question: "What can I use instead of Humira?"
Response: {"query_type": "alternatives", "drug_name": "Humira", "filters": {"drug_status": null, "pa_mnd_required": null, "category": null, "manufacturer": null, "hcpcs": null}}

Question: "Show me non-preferred oncology drugs that need prior auth"
Response: {"query_type": "list_filter", "drug_name": null, "filters": {"drug_status": "non-preferred", "pa_mnd_required": "yes", "category": "oncology", "manufacturer": null, "hcpcs": null}}`

const answerSystemPrompt = `You are a formulary assistant. Answer questions about drug coverage using ONLY the formulary data provided.

CRITICAL SAFETY RULES:
1. Do NOT give medical advice, dosing guidance, or treatment recommendations.
2. Do NOT predict clinical outcomes or compare drug efficacy.
3. NEVER invent drugs, statuses, codes, or data not present in the provided results.
4. Mention prior authorization / medical necessity requirements where the data shows them.

FORMAT:
- Use markdown.
- For a single drug, start with the drug name as a header, then bullet the details.
- For alternatives, group by category using "### Category:" headers and list ALL alternatives as "- Drug Name (status)".
- For list queries, state the count first. If fewer than 15 results, list them all; otherwise summarize and give a few examples.
- If there are no results, say so, state the criteria used, and suggest checking the spelling of the drug name.`

// OpenAIClient handles OpenAI-compatible API interactions
type OpenAIClient struct {
	config       *config.OpenAIConfig
	httpClient   *http.Client
	chunkParser  StreamChunkParser // Provider-specific chunk parser
	intentSchema *gojsonschema.Schema
}

// NewOpenAIClient creates a new OpenAI-compatible client with auto-detection of provider
func NewOpenAIClient(cfg *config.OpenAIConfig) *OpenAIClient {
	// Auto-detect provider based on base URL
	var parser StreamChunkParser
	if IsNVIDIAProvider(cfg.APIBase) {
		parser = &NVIDIAStreamChunkParser{}
		log.Printf("🔧 Detected NVIDIA API provider (supports reasoning/thinking)")
	} else if IsOpenAIProvider(cfg.APIBase) {
		parser = &OpenAIStreamChunkParser{}
		log.Printf("🔧 Detected OpenAI API provider")
	} else if IsOpenRouterProvider(cfg.APIBase) {
		parser = &OpenAIStreamChunkParser{}
		log.Printf("🔧 Detected OpenRouter provider")
	} else {
		// Default to OpenAI format for unknown providers
		parser = &OpenAIStreamChunkParser{}
		log.Printf("🔧 Using standard OpenAI format for: %s", cfg.APIBase)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(intentSchemaJSON))
	if err != nil {
		log.Printf("Warning: Failed to compile intent schema: %v", err)
		schema = nil
	}

	return &OpenAIClient{
		config:       cfg,
		chunkParser:  parser,
		intentSchema: schema,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// IsEnabled returns whether the client is configured and ready
func (c *OpenAIClient) IsEnabled() bool {
	return c.config.Enabled
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	TopP           float64         `json:"top_p,omitempty"` // For DeepSeek/NVIDIA API
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"` // For streaming responses
}

// ChatMessage represents a single message in the conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat specifies the format of the response
type ResponseFormat struct {
	Type string `json:"type"` // "json_object" or "text"
}

// ChatCompletionResponse represents the API response
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// StreamCallback is called for each chunk in streaming mode
// Generic callback that works with all providers
type StreamCallback func(chunk *StreamChunk) error

// ChatCompletion performs a chat completion request
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if !c.config.Enabled {
		return nil, fmt.Errorf("OpenAI API is not enabled (missing API key)")
	}

	// Use configured model if not specified
	if req.Model == "" {
		req.Model = c.config.ChatModel
	}

	// Apply default parameters from config
	if req.Temperature == 0 && c.config.ChatTemperature > 0 {
		req.Temperature = c.config.ChatTemperature
	}
	if req.TopP == 0 && c.config.ChatTopP > 0 {
		req.TopP = c.config.ChatTopP
	}
	if req.MaxTokens == 0 && c.config.ChatMaxTokens > 0 {
		req.MaxTokens = c.config.ChatMaxTokens
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.config.APIBase)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// ChatCompletionStream performs a streaming chat completion request
func (c *OpenAIClient) ChatCompletionStream(ctx context.Context, req ChatCompletionRequest, callback StreamCallback) error {
	if !c.config.Enabled {
		return fmt.Errorf("OpenAI API is not enabled (missing API key)")
	}

	// Use configured model if not specified
	if req.Model == "" {
		req.Model = c.config.ChatModel
	}

	// Apply default parameters from config
	if req.Temperature == 0 && c.config.ChatTemperature > 0 {
		req.Temperature = c.config.ChatTemperature
	}
	if req.TopP == 0 && c.config.ChatTopP > 0 {
		req.TopP = c.config.ChatTopP
	}
	if req.MaxTokens == 0 && c.config.ChatMaxTokens > 0 {
		req.MaxTokens = c.config.ChatMaxTokens
	}

	// Enable streaming
	req.Stream = true

	reqBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.config.APIBase)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Process streaming response
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		// Skip empty lines
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// Parse SSE format: "data: {...}"
		if bytes.HasPrefix(line, []byte("data: ")) {
			data := bytes.TrimPrefix(line, []byte("data: "))

			// Check for [DONE] marker
			if bytes.Equal(data, []byte("[DONE]")) {
				break
			}

			// Parse chunk using provider-specific parser
			chunk, err := c.chunkParser.ParseChunk(data)
			if err != nil {
				log.Printf("Warning: Failed to parse stream chunk: %v", err)
				continue
			}

			// Call callback with generic chunk
			if err := callback(chunk); err != nil {
				return fmt.Errorf("callback error: %w", err)
			}
		}
	}

	return nil
}

// ExtractIntent uses the model to parse a natural language formulary question
// into a structured intent candidate
func (c *OpenAIClient) ExtractIntent(ctx context.Context, query string) (*LLMIntentResponse, error) {
	if !c.config.Enabled {
		return nil, fmt.Errorf("OpenAI API is not enabled")
	}

	req := ChatCompletionRequest{
		Model: c.config.ChatModel,
		Messages: []ChatMessage{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: query},
		},
		MaxTokens:      500,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	// Use robust JSON parser to handle various model output formats
	var doc json.RawMessage
	content := resp.Choices[0].Message.Content
	if err := utils.ParseAIJSON(content, &doc); err != nil {
		log.Printf("Failed to parse model response, content: %s", content)
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	if c.intentSchema != nil {
		res, err := c.intentSchema.Validate(gojsonschema.NewBytesLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("intent schema validation: %w", err)
		}
		if !res.Valid() {
			msgs := make([]string, 0, len(res.Errors()))
			for _, e := range res.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, fmt.Errorf("intent schema validation failed: %s", strings.Join(msgs, "; "))
		}
	}

	var result LLMIntentResponse
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
	}

	// Validate the response structure
	if err := c.validateIntentResponse(&result); err != nil {
		return nil, fmt.Errorf("model response validation failed: %w", err)
	}

	return &result, nil
}

// validateIntentResponse validates the model response using business rules.
// An invalid query_type fails the response; invalid filter values are
// dropped so the rest of the intent survives.
func (c *OpenAIClient) validateIntentResponse(resp *LLMIntentResponse) error {
	switch model.QueryType(resp.QueryType) {
	case model.QueryTypeDrugStatus, model.QueryTypeAlternatives, model.QueryTypeListFilter:
	default:
		return fmt.Errorf("invalid query_type: %q", resp.QueryType)
	}

	if resp.DrugName != nil && strings.TrimSpace(*resp.DrugName) == "" {
		resp.DrugName = nil
	}

	if resp.Filters.DrugStatus != nil {
		if _, ok := model.ParseDrugStatus(*resp.Filters.DrugStatus); !ok {
			log.Printf("Warning: dropping invalid drug_status from model: %q", *resp.Filters.DrugStatus)
			resp.Filters.DrugStatus = nil
		}
	}
	if resp.Filters.PAMndRequired != nil {
		if _, ok := model.ParsePARequirement(*resp.Filters.PAMndRequired); !ok {
			log.Printf("Warning: dropping invalid pa_mnd_required from model: %q", *resp.Filters.PAMndRequired)
			resp.Filters.PAMndRequired = nil
		}
	}
	return nil
}

// GenerateAnswer produces a natural language answer grounded in the supplied
// formulary results
func (c *OpenAIClient) GenerateAnswer(ctx context.Context, query string, intent *model.Intent, results []model.AggregatedDrug) (string, error) {
	if !c.config.Enabled {
		return "", fmt.Errorf("OpenAI API is not enabled")
	}

	req := ChatCompletionRequest{
		Model: c.config.ChatModel,
		Messages: []ChatMessage{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildAnswerPrompt(query, intent, results)},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	}

	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// GenerateAnswerStream streams a natural language answer; the callback
// receives each content chunk as it arrives
func (c *OpenAIClient) GenerateAnswerStream(ctx context.Context, query string, intent *model.Intent, results []model.AggregatedDrug, callback func(content string) error) (string, error) {
	if !c.config.Enabled {
		return "", fmt.Errorf("OpenAI API is not enabled")
	}

	req := ChatCompletionRequest{
		Model: c.config.ChatModel,
		Messages: []ChatMessage{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildAnswerPrompt(query, intent, results)},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	}

	var fullContent strings.Builder
	err := c.ChatCompletionStream(ctx, req, func(chunk *StreamChunk) error {
		// Thinking content is not part of the answer
		if chunk.Content != "" {
			fullContent.WriteString(chunk.Content)
			if err := callback(chunk.Content); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("streaming error: %w", err)
	}

	return strings.TrimSpace(fullContent.String()), nil
}

// buildAnswerPrompt assembles the user message for answer generation
func buildAnswerPrompt(query string, intent *model.Intent, results []model.AggregatedDrug) string {
	var b strings.Builder
	b.WriteString("User question: ")
	b.WriteString(query)
	b.WriteString("\n\nQuery type: ")
	b.WriteString(string(intent.QueryType))
	if intent.DrugName != nil {
		b.WriteString("\nDrug asked about: ")
		b.WriteString(*intent.DrugName)
	}
	b.WriteString("\n\nFormulary data:\n")
	b.WriteString(formatResultsForModel(results))
	return b.String()
}

// formatResultsForModel renders results compactly: full detail for small
// result sets, a summary for large ones
func formatResultsForModel(results []model.AggregatedDrug) string {
	if len(results) == 0 {
		return "No results found."
	}

	if len(results) <= 10 {
		var b strings.Builder
		for i, drug := range results {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(fmt.Sprintf("Drug: %s\n", drug.DrugName))
			parts := make([]string, 0, len(drug.Categories))
			for _, cat := range drug.Categories {
				parts = append(parts, fmt.Sprintf("%s (%s)", cat, drug.StatusesByCategory[cat]))
			}
			b.WriteString(fmt.Sprintf("Categories: %s\n", strings.Join(parts, ", ")))
			b.WriteString(fmt.Sprintf("Overall status: %s\n", drug.DrugStatus))
			b.WriteString(fmt.Sprintf("PA/MND required: %s\n", drug.PAMndRequired))
			if drug.HCPCS != nil {
				b.WriteString(fmt.Sprintf("HCPCS: %s\n", *drug.HCPCS))
			}
			if drug.Manufacturer != nil {
				b.WriteString(fmt.Sprintf("Manufacturer: %s\n", *drug.Manufacturer))
			}
			if drug.Notes != nil {
				b.WriteString(fmt.Sprintf("Notes: %s\n", *drug.Notes))
			}
		}
		return b.String()
	}

	var categories, manufacturers, examples []string
	seenCat := make(map[string]bool)
	seenMfr := make(map[string]bool)
	for _, drug := range results {
		for _, cat := range drug.Categories {
			if !seenCat[cat] {
				seenCat[cat] = true
				categories = append(categories, cat)
			}
		}
		if drug.Manufacturer != nil && !seenMfr[*drug.Manufacturer] && len(manufacturers) < 5 {
			seenMfr[*drug.Manufacturer] = true
			manufacturers = append(manufacturers, *drug.Manufacturer)
		}
		if len(examples) < 5 {
			examples = append(examples, drug.DrugName)
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Found %d drugs matching the criteria.\n", len(results)))
	b.WriteString(fmt.Sprintf("Categories: %s\n", strings.Join(categories, ", ")))
	if len(manufacturers) > 0 {
		b.WriteString(fmt.Sprintf("Manufacturers include: %s\n", strings.Join(manufacturers, ", ")))
	}
	b.WriteString(fmt.Sprintf("Examples: %s\n", strings.Join(examples, ", ")))
	return b.String()
}
