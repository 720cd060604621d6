package model

// QueryRequest represents a natural language formulary question
type QueryRequest struct {
	Query   string        `json:"query" binding:"required"`
	UseLLM  *bool         `json:"use_llm,omitempty"`
	Options *QueryOptions `json:"options,omitempty"`
}

// QueryOptions represents pagination options
type QueryOptions struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// QueryMetadata summarizes how a query was executed
type QueryMetadata struct {
	QueryType    string `json:"query_type"`
	ResultsCount int    `json:"results_count"`
	LLMUsed      bool   `json:"llm_used"`
}

// QueryResponse is the full answer payload for a formulary question
type QueryResponse struct {
	QueryID     string           `json:"query_id"`
	Answer      string           `json:"answer"`
	Results     []AggregatedDrug `json:"results"`
	Match       *MatchInfo       `json:"match,omitempty"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
	Intent      *Intent          `json:"intent,omitempty"`
	Metadata    QueryMetadata    `json:"metadata"`
	Took        int64            `json:"took_ms"` // Response time in milliseconds
}

// Suggestion is a "did you mean" candidate surfaced when no confident
// name match exists
type Suggestion struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
}

// FilterRequest lists drugs matching structured filters, bypassing
// natural language parsing
type FilterRequest struct {
	Filters Filters       `json:"filters"`
	Options *QueryOptions `json:"options,omitempty"`
}

// ListResponse is a paginated list of aggregated drugs
type ListResponse struct {
	Results []AggregatedDrug `json:"results"`
	Total   int              `json:"total"`
	Took    int64            `json:"took_ms"`
}

// DrugStatusResponse is the lookup payload for a single drug
type DrugStatusResponse struct {
	Drug  *AggregatedDrug `json:"drug"`
	Match *MatchInfo      `json:"match,omitempty"`
	Took  int64           `json:"took_ms"`
}

// AlternativesResponse lists preferred alternatives for a drug
type AlternativesResponse struct {
	DrugName     string           `json:"drug_name"`
	Categories   []string         `json:"categories"`
	Alternatives []AggregatedDrug `json:"alternatives"`
	Total        int              `json:"total"`
	Took         int64            `json:"took_ms"`
}

// AutocompleteResponse holds prefix completions for a partial drug name
type AutocompleteResponse struct {
	Query       string   `json:"query"`
	Completions []string `json:"completions"`
}

// SuggestionsResponse holds spelling suggestions for a misspelled name
type SuggestionsResponse struct {
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
}

// CategoriesResponse lists the distinct therapeutic categories
type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

// FeedbackRequest represents user feedback on a previous answer
type FeedbackRequest struct {
	QueryID string `json:"query_id" binding:"required"`
	Action  string `json:"action" binding:"required"` // helpful, not_helpful, flagged
}

// FeedbackResponse represents feedback response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RebuildResponse reports an autocomplete index rebuild
type RebuildResponse struct {
	Indexed int   `json:"indexed"`
	Took    int64 `json:"took_ms"`
}

// QueryLog is one persisted query-understanding record
type QueryLog struct {
	ID           string    `db:"id" json:"id"`
	Query        string    `db:"query" json:"query"`
	QueryType    string    `db:"query_type" json:"query_type"`
	Intent       JSONMap   `db:"intent" json:"intent"`
	ResultsCount int       `db:"results_count" json:"results_count"`
	ResultNames  JSONArray `db:"result_names" json:"result_names,omitempty"`
	LLMUsed      bool      `db:"llm_used" json:"llm_used"`
	TookMs       int64     `db:"took_ms" json:"took_ms"`
}
