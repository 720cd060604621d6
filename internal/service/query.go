package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"formulary/internal/config"
	"formulary/internal/model"
	"formulary/internal/utils"
)

const (
	// autoAcceptThreshold is the match confidence at which a fuzzy name
	// match is used without asking
	autoAcceptThreshold = 85

	// suggestThreshold is the floor for "did you mean" suggestions
	suggestThreshold = 70

	// suggestionLimit caps how many suggestions a response carries
	suggestionLimit = 5
)

// DrugStore is the storage surface the query pipeline reads from
type DrugStore interface {
	ListDrugNames(ctx context.Context) ([]string, error)
	GetDrugRows(ctx context.Context, name string) ([]model.DrugRow, error)
	GetAlternatives(ctx context.Context, name string, categories []string, status model.DrugStatus) ([]model.DrugRow, error)
	FilterDrugs(ctx context.Context, filters model.Filters, limit, offset int) ([]model.DrugRow, int, error)
	GetCategories(ctx context.Context) ([]string, error)
	AutocompleteNames(ctx context.Context, prefix string, limit int) ([]string, error)
}

// QueryLogStore persists query logs and feedback
type QueryLogStore interface {
	LogQuery(ctx context.Context, entry *model.QueryLog) error
	// UpdateFeedback reports whether the query id exists
	UpdateFeedback(ctx context.Context, queryID, feedback string) (bool, error)
}

// QueryService runs the full pipeline: intent resolution, name matching,
// fetching, aggregation, answer generation
type QueryService struct {
	store    DrugStore
	logs     QueryLogStore
	intents  *IntentService
	aiClient AIClient
	config   *config.QueryConfig
}

// NewQueryService creates a new query service
func NewQueryService(store DrugStore, logs QueryLogStore, intents *IntentService, aiClient AIClient, cfg *config.QueryConfig) *QueryService {
	return &QueryService{
		store:    store,
		logs:     logs,
		intents:  intents,
		aiClient: aiClient,
		config:   cfg,
	}
}

// queryOutcome carries pipeline state between resolution and answering
type queryOutcome struct {
	query          string
	useLLM         bool
	options        *model.QueryOptions
	intent         *model.Intent
	response       *model.QueryResponse
	fallbackAnswer string
	grounded       bool // has storage-backed results to ground a model answer on
	total          int
}

// nameInput is the string name resolution starts from: the extracted
// candidate when one exists, the whole query otherwise
func (o *queryOutcome) nameInput() string {
	if o.intent.DrugName != nil {
		return *o.intent.DrugName
	}
	return o.query
}

// Query answers a natural language formulary question
func (s *QueryService) Query(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	start := time.Now()

	out, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.shouldUseModelAnswer(out) {
		answer, aerr := s.aiClient.GenerateAnswer(ctx, out.query, out.intent, out.response.Results)
		if aerr != nil {
			log.Printf("Warning: model answer generation failed: %v, using fallback", aerr)
			out.response.Answer = out.fallbackAnswer
		} else {
			out.response.Answer = answer
			out.response.Metadata.LLMUsed = true
		}
	} else {
		out.response.Answer = out.fallbackAnswer
	}

	s.finish(out, start)
	return out.response, nil
}

// QueryStream answers like Query but streams the answer through the
// callback. The returned response carries the full accumulated answer.
func (s *QueryService) QueryStream(ctx context.Context, req *model.QueryRequest, callback func(content string) error) (*model.QueryResponse, error) {
	start := time.Now()

	out, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.shouldUseModelAnswer(out) {
		answer, aerr := s.aiClient.GenerateAnswerStream(ctx, out.query, out.intent, out.response.Results, callback)
		if aerr != nil {
			log.Printf("Warning: model answer streaming failed: %v, using fallback", aerr)
			out.response.Answer = out.fallbackAnswer
			if cberr := callback(out.fallbackAnswer); cberr != nil {
				return nil, cberr
			}
		} else {
			out.response.Answer = answer
			out.response.Metadata.LLMUsed = true
		}
	} else {
		out.response.Answer = out.fallbackAnswer
		if cberr := callback(out.fallbackAnswer); cberr != nil {
			return nil, cberr
		}
	}

	s.finish(out, start)
	return out.response, nil
}

func (s *QueryService) shouldUseModelAnswer(out *queryOutcome) bool {
	return out.grounded && out.useLLM && s.aiClient != nil && s.aiClient.IsEnabled()
}

func (s *QueryService) run(ctx context.Context, req *model.QueryRequest) (*queryOutcome, error) {
	query := strings.TrimSpace(req.Query)

	useLLM := true
	if req.UseLLM != nil {
		useLLM = *req.UseLLM
	}

	var intent *model.Intent
	if useLLM {
		intent = s.intents.Resolve(ctx, query)
	} else {
		intent = Classify(query)
	}

	out := &queryOutcome{
		query:   query,
		useLLM:  useLLM,
		options: req.Options,
		intent:  intent,
		response: &model.QueryResponse{
			QueryID: uuid.New().String(),
			Results: []model.AggregatedDrug{},
			Intent:  intent,
			Metadata: model.QueryMetadata{
				QueryType: string(intent.QueryType),
				LLMUsed:   intent.Source == model.SourceLLM,
			},
		},
	}

	var err error
	switch intent.QueryType {
	case model.QueryTypeDrugStatus:
		err = s.runDrugStatus(ctx, out)
	case model.QueryTypeAlternatives:
		err = s.runAlternatives(ctx, out)
	case model.QueryTypeListFilter:
		err = s.runListFilter(ctx, out)
	default:
		out.fallbackAnswer = FormatUnknownAnswer()
	}
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *QueryService) runDrugStatus(ctx context.Context, out *queryOutcome) error {
	name, match, suggestions, err := s.resolveDrugName(ctx, out.nameInput())
	if err != nil {
		return err
	}
	if name == "" {
		out.response.Suggestions = suggestions
		out.fallbackAnswer = FormatNotFoundAnswer(out.nameInput(), suggestions)
		return nil
	}

	rows, err := s.store.GetDrugRows(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch drug rows: %w", err)
	}
	agg := AggregateRows(rows)
	if agg == nil {
		out.fallbackAnswer = FormatNotFoundAnswer(out.nameInput(), nil)
		return nil
	}

	out.response.Results = []model.AggregatedDrug{*agg}
	out.response.Match = match
	out.fallbackAnswer = FormatDrugStatusAnswer(agg, match)
	out.grounded = true
	out.total = 1
	return nil
}

func (s *QueryService) runAlternatives(ctx context.Context, out *queryOutcome) error {
	name, match, suggestions, err := s.resolveDrugName(ctx, out.nameInput())
	if err != nil {
		return err
	}
	if name == "" {
		out.response.Suggestions = suggestions
		out.fallbackAnswer = FormatNotFoundAnswer(out.nameInput(), suggestions)
		return nil
	}

	rows, err := s.store.GetDrugRows(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch drug rows: %w", err)
	}
	agg := AggregateRows(rows)
	if agg == nil {
		out.fallbackAnswer = FormatNotFoundAnswer(out.nameInput(), nil)
		return nil
	}

	altRows, err := s.store.GetAlternatives(ctx, agg.DrugName, agg.Categories, model.StatusPreferred)
	if err != nil {
		return fmt.Errorf("failed to fetch alternatives: %w", err)
	}
	alternatives := AggregateAll(altRows)

	out.response.Results = alternatives
	out.response.Match = match
	out.fallbackAnswer = FormatAlternativesAnswer(agg.DrugName, agg.Categories, alternatives)
	out.grounded = true
	out.total = len(alternatives)
	return nil
}

func (s *QueryService) runListFilter(ctx context.Context, out *queryOutcome) error {
	filters := ResolveFilters(out.intent.Filters)
	out.intent.Filters = filters

	limit, offset := s.pageParams(out.options)
	rows, total, err := s.store.FilterDrugs(ctx, filters, limit, offset)
	if err != nil {
		return fmt.Errorf("failed to filter drugs: %w", err)
	}
	results := AggregateAll(rows)

	out.response.Results = results
	out.fallbackAnswer = FormatListAnswer(filters, results, total)
	out.grounded = true
	out.total = total
	return nil
}

// resolveDrugName maps free text to a canonical formulary name. Matches at
// or above autoAcceptThreshold are used directly; matches in the suggestion
// band come back as "did you mean" candidates with no accepted name.
func (s *QueryService) resolveDrugName(ctx context.Context, input string) (string, *model.MatchInfo, []model.Suggestion, error) {
	universe, err := s.store.ListDrugNames(ctx)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to list drug names: %w", err)
	}

	name, confidence, found := utils.ExtractDrugName(input, universe)
	if !found || confidence < suggestThreshold {
		return "", nil, nil, nil
	}

	if confidence >= autoAcceptThreshold {
		match := &model.MatchInfo{
			Input:      input,
			Matched:    name,
			Confidence: confidence,
			Exact:      utils.NormalizeText(input) == utils.NormalizeText(name),
		}
		return name, match, nil, nil
	}

	suggestions := []model.Suggestion{{Name: name, Confidence: confidence}}
	for _, m := range utils.Match(input, universe, suggestionLimit) {
		if m.Confidence < suggestThreshold || m.Name == name {
			continue
		}
		suggestions = append(suggestions, model.Suggestion{Name: m.Name, Confidence: m.Confidence})
		if len(suggestions) == suggestionLimit {
			break
		}
	}
	return "", nil, suggestions, nil
}

func (s *QueryService) pageParams(opts *model.QueryOptions) (int, int) {
	limit := s.config.DefaultLimit
	offset := s.config.DefaultOffset
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.Offset > 0 {
			offset = opts.Offset
		}
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return limit, offset
}

func (s *QueryService) finish(out *queryOutcome, start time.Time) {
	out.response.Took = time.Since(start).Milliseconds()
	out.response.Metadata.ResultsCount = out.total

	if s.logs == nil {
		return
	}
	names := make(model.JSONArray, 0, len(out.response.Results))
	for _, drug := range out.response.Results {
		names = append(names, drug.DrugName)
	}
	entry := &model.QueryLog{
		ID:           out.response.QueryID,
		Query:        out.query,
		QueryType:    string(out.intent.QueryType),
		Intent:       intentToMap(out.intent),
		ResultsCount: out.total,
		ResultNames:  names,
		LLMUsed:      out.response.Metadata.LLMUsed,
		TookMs:       out.response.Took,
	}
	go func() {
		if err := s.logs.LogQuery(context.Background(), entry); err != nil {
			log.Printf("Warning: failed to log query: %v", err)
		}
	}()
}

// intentToMap flattens an intent for the query log's JSONB column
func intentToMap(intent *model.Intent) model.JSONMap {
	data, err := json.Marshal(intent)
	if err != nil {
		return model.JSONMap{}
	}
	var m model.JSONMap
	if err := json.Unmarshal(data, &m); err != nil {
		return model.JSONMap{}
	}
	return m
}

// DrugStatus looks up one drug by name, fuzzily. Returns a response with a
// nil Drug when nothing matches.
func (s *QueryService) DrugStatus(ctx context.Context, name string) (*model.DrugStatusResponse, error) {
	start := time.Now()

	resolved, match, _, err := s.resolveDrugName(ctx, name)
	if err != nil {
		return nil, err
	}

	resp := &model.DrugStatusResponse{}
	if resolved != "" {
		rows, err := s.store.GetDrugRows(ctx, resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch drug rows: %w", err)
		}
		if agg := AggregateRows(rows); agg != nil {
			resp.Drug = agg
			resp.Match = match
		}
	}
	resp.Took = time.Since(start).Milliseconds()
	return resp, nil
}

// Alternatives lists alternatives with the given status sharing a category
// with the named drug. Returns nil when the drug is not in the formulary.
func (s *QueryService) Alternatives(ctx context.Context, name string, status model.DrugStatus) (*model.AlternativesResponse, error) {
	start := time.Now()

	resolved, _, _, err := s.resolveDrugName(ctx, name)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return nil, nil
	}

	rows, err := s.store.GetDrugRows(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch drug rows: %w", err)
	}
	agg := AggregateRows(rows)
	if agg == nil {
		return nil, nil
	}

	altRows, err := s.store.GetAlternatives(ctx, agg.DrugName, agg.Categories, status)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alternatives: %w", err)
	}
	alternatives := AggregateAll(altRows)

	return &model.AlternativesResponse{
		DrugName:     agg.DrugName,
		Categories:   agg.Categories,
		Alternatives: alternatives,
		Total:        len(alternatives),
		Took:         time.Since(start).Milliseconds(),
	}, nil
}

// ListDrugs lists drugs matching structured filters, no natural language
// involved
func (s *QueryService) ListDrugs(ctx context.Context, req *model.FilterRequest) (*model.ListResponse, error) {
	start := time.Now()

	filters := ResolveFilters(req.Filters)
	limit, offset := s.pageParams(req.Options)
	rows, total, err := s.store.FilterDrugs(ctx, filters, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to filter drugs: %w", err)
	}

	return &model.ListResponse{
		Results: AggregateAll(rows),
		Total:   total,
		Took:    time.Since(start).Milliseconds(),
	}, nil
}

// Categories lists the distinct therapeutic categories
func (s *QueryService) Categories(ctx context.Context) (*model.CategoriesResponse, error) {
	categories, err := s.store.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return &model.CategoriesResponse{Categories: categories}, nil
}

// Feedback records user feedback on a previously answered query. The
// boolean reports whether the query id exists.
func (s *QueryService) Feedback(ctx context.Context, queryID, action string) (bool, error) {
	if s.logs == nil {
		return false, fmt.Errorf("query logging is not configured")
	}
	return s.logs.UpdateFeedback(ctx, queryID, action)
}

// DrugNames returns every drug name in the formulary, for index rebuilds
func (s *QueryService) DrugNames(ctx context.Context) ([]string, error) {
	return s.store.ListDrugNames(ctx)
}

// CompleteName returns prefix completions for a partial drug name straight
// from storage, the fallback path when no search index is configured
func (s *QueryService) CompleteName(ctx context.Context, prefix string, limit int) ([]string, error) {
	names, err := s.store.AutocompleteNames(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to complete drug name: %w", err)
	}
	return names, nil
}

// Suggest returns spelling suggestions for a possibly misspelled drug name
func (s *QueryService) Suggest(ctx context.Context, query string, threshold, limit int) (*model.SuggestionsResponse, error) {
	universe, err := s.store.ListDrugNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drug names: %w", err)
	}

	matches := utils.Match(query, universe, limit)
	suggestions := make([]model.Suggestion, 0, len(matches))
	for _, m := range matches {
		if m.Confidence < threshold {
			break
		}
		suggestions = append(suggestions, model.Suggestion{Name: m.Name, Confidence: m.Confidence})
	}

	return &model.SuggestionsResponse{Query: query, Suggestions: suggestions}, nil
}
