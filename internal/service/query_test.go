package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"formulary/internal/config"
	"formulary/internal/model"
)

type stubDrugStore struct {
	names       []string
	rowsByName  map[string][]model.DrugRow
	altRows     []model.DrugRow
	filterRows  []model.DrugRow
	filterTotal int
	categories  []string

	gotAltName       string
	gotAltCategories []string
	gotAltStatus     model.DrugStatus
	gotFilters       model.Filters
	gotLimit         int
	gotOffset        int
}

func (s *stubDrugStore) ListDrugNames(ctx context.Context) ([]string, error) {
	return s.names, nil
}

func (s *stubDrugStore) GetDrugRows(ctx context.Context, name string) ([]model.DrugRow, error) {
	return s.rowsByName[name], nil
}

func (s *stubDrugStore) GetAlternatives(ctx context.Context, name string, categories []string, status model.DrugStatus) ([]model.DrugRow, error) {
	s.gotAltName = name
	s.gotAltCategories = categories
	s.gotAltStatus = status
	return s.altRows, nil
}

func (s *stubDrugStore) FilterDrugs(ctx context.Context, filters model.Filters, limit, offset int) ([]model.DrugRow, int, error) {
	s.gotFilters = filters
	s.gotLimit = limit
	s.gotOffset = offset
	return s.filterRows, s.filterTotal, nil
}

func (s *stubDrugStore) GetCategories(ctx context.Context) ([]string, error) {
	return s.categories, nil
}

func (s *stubDrugStore) AutocompleteNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	var names []string
	for _, name := range s.names {
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			names = append(names, name)
		}
		if len(names) == limit {
			break
		}
	}
	return names, nil
}

type stubLogStore struct {
	entries chan *model.QueryLog
}

func (s *stubLogStore) LogQuery(ctx context.Context, entry *model.QueryLog) error {
	if s.entries != nil {
		s.entries <- entry
	}
	return nil
}

func (s *stubLogStore) UpdateFeedback(ctx context.Context, queryID, feedback string) (bool, error) {
	return true, nil
}

func fixtureStore() *stubDrugStore {
	hcpcs := "J9035"
	mfr := "Genentech"
	return &stubDrugStore{
		names: []string{"Avastin", "Humira", "Keytruda", "Stelara"},
		rowsByName: map[string][]model.DrugRow{
			"Avastin": {
				{DrugName: "Avastin", Category: "oncology", DrugStatus: model.StatusPreferred, HCPCS: &hcpcs, Manufacturer: &mfr, PAMndRequired: model.PARequired},
				{DrugName: "Avastin", Category: "neurology", DrugStatus: model.StatusNonPreferred, HCPCS: &hcpcs, Manufacturer: &mfr, PAMndRequired: model.PARequired},
			},
			"Humira": {
				{DrugName: "Humira", Category: "immunology", DrugStatus: model.StatusNonPreferred, PAMndRequired: model.PARequired},
			},
		},
		categories: []string{"immunology", "neurology", "oncology"},
	}
}

func newTestQueryService(store *stubDrugStore, logs QueryLogStore, ai AIClient) *QueryService {
	cfg := &config.QueryConfig{
		DefaultLimit: 20,
		MaxLimit:     100,
	}
	return NewQueryService(store, logs, NewIntentService(ai), ai, cfg)
}

func ruleOnly(query string) *model.QueryRequest {
	no := false
	return &model.QueryRequest{Query: query, UseLLM: &no}
}

func TestQueryDrugStatus(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("Is Avastin a preferred drug?"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if resp.QueryID == "" {
		t.Error("expected a query id")
	}
	if resp.Metadata.QueryType != "drug_status" {
		t.Errorf("expected drug_status, got %s", resp.Metadata.QueryType)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	drug := resp.Results[0]
	if drug.DrugName != "Avastin" {
		t.Errorf("expected Avastin, got %s", drug.DrugName)
	}
	if drug.DrugStatus != model.StatusPreferred {
		t.Errorf("preferred in any category should win, got %s", drug.DrugStatus)
	}
	if resp.Match == nil || !resp.Match.Exact {
		t.Errorf("expected exact match, got %+v", resp.Match)
	}
	if !strings.Contains(resp.Answer, "## Avastin") {
		t.Errorf("fallback answer should carry the drug header: %q", resp.Answer)
	}
	if resp.Metadata.LLMUsed {
		t.Error("rule-only query must not report llm usage")
	}
}

func TestQueryMisspelledNameAutoAccepts(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("Is Avastn a preferred drug?"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(resp.Results) != 1 {
		t.Fatalf("expected fuzzy match to resolve, got %d results", len(resp.Results))
	}
	if resp.Match == nil {
		t.Fatal("expected match info")
	}
	if resp.Match.Exact {
		t.Error("misspelled input must not be flagged exact")
	}
	if resp.Match.Matched != "Avastin" {
		t.Errorf("expected Avastin, got %s", resp.Match.Matched)
	}
	if resp.Match.Confidence < 85 {
		t.Errorf("auto-accepted match should be >= 85, got %d", resp.Match.Confidence)
	}
	if !strings.Contains(resp.Answer, "matched from") {
		t.Errorf("fuzzy answer should note the correction: %q", resp.Answer)
	}
}

func TestQuerySuggestionBand(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("What is the status of Keytrooda?"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(resp.Results) != 0 {
		t.Errorf("mid-band match must not auto-resolve, got %d results", len(resp.Results))
	}
	if len(resp.Suggestions) == 0 {
		t.Fatal("expected did-you-mean suggestions")
	}
	if resp.Suggestions[0].Name != "Keytruda" {
		t.Errorf("expected Keytruda suggestion, got %s", resp.Suggestions[0].Name)
	}
	if c := resp.Suggestions[0].Confidence; c < 70 || c >= 85 {
		t.Errorf("suggestion confidence should sit in the 70-84 band, got %d", c)
	}
	if !strings.Contains(resp.Answer, "Did you mean") {
		t.Errorf("expected did-you-mean answer: %q", resp.Answer)
	}
}

func TestQueryDrugNotFound(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("What is the status of Xyzzyqwv?"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(resp.Results))
	}
	if len(resp.Suggestions) != 0 {
		t.Errorf("expected no suggestions, got %v", resp.Suggestions)
	}
	if !strings.Contains(resp.Answer, "check the spelling") {
		t.Errorf("expected spelling hint: %q", resp.Answer)
	}
}

func TestQueryAlternatives(t *testing.T) {
	store := fixtureStore()
	store.altRows = []model.DrugRow{
		{DrugName: "Stelara", Category: "immunology", DrugStatus: model.StatusPreferred, PAMndRequired: model.PANotRequired},
	}
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("What are alternatives to Humira?"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if store.gotAltName != "Humira" {
		t.Errorf("alternatives should be fetched for Humira, got %s", store.gotAltName)
	}
	if len(store.gotAltCategories) != 1 || store.gotAltCategories[0] != "immunology" {
		t.Errorf("expected immunology category, got %v", store.gotAltCategories)
	}
	if store.gotAltStatus != model.StatusPreferred {
		t.Errorf("natural language alternatives should ask for preferred drugs, got %s", store.gotAltStatus)
	}
	if len(resp.Results) != 1 || resp.Results[0].DrugName != "Stelara" {
		t.Fatalf("expected Stelara alternative, got %+v", resp.Results)
	}
	if !strings.Contains(resp.Answer, "### Category: immunology") {
		t.Errorf("answer should group by category: %q", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "- Stelara (preferred)") {
		t.Errorf("answer should list the alternative with status: %q", resp.Answer)
	}
}

func TestQueryListFilter(t *testing.T) {
	store := fixtureStore()
	store.filterRows = []model.DrugRow{
		{DrugName: "Avastin", Category: "oncology", DrugStatus: model.StatusPreferred, PAMndRequired: model.PARequired},
		{DrugName: "Herceptin", Category: "oncology", DrugStatus: model.StatusPreferred, PAMndRequired: model.PANotRequired},
	}
	store.filterTotal = 2
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("List all preferred oncology drugs"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if store.gotFilters.DrugStatus == nil || *store.gotFilters.DrugStatus != model.StatusPreferred {
		t.Errorf("expected preferred filter, got %v", store.gotFilters.DrugStatus)
	}
	if store.gotFilters.Category == nil || *store.gotFilters.Category != "oncology" {
		t.Errorf("expected oncology filter, got %v", store.gotFilters.Category)
	}
	if store.gotLimit != 20 || store.gotOffset != 0 {
		t.Errorf("expected default paging 20/0, got %d/%d", store.gotLimit, store.gotOffset)
	}
	if len(resp.Results) != 2 {
		t.Errorf("expected 2 drugs, got %d", len(resp.Results))
	}
	if resp.Metadata.ResultsCount != 2 {
		t.Errorf("expected results_count 2, got %d", resp.Metadata.ResultsCount)
	}
	if !strings.Contains(resp.Answer, "Found **2**") {
		t.Errorf("answer should lead with the count: %q", resp.Answer)
	}
}

func TestQueryLimitCapped(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	req := ruleOnly("List all preferred drugs")
	req.Options = &model.QueryOptions{Limit: 5000, Offset: 40}
	if _, err := svc.Query(context.Background(), req); err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if store.gotLimit != 100 {
		t.Errorf("limit should be capped at 100, got %d", store.gotLimit)
	}
	if store.gotOffset != 40 {
		t.Errorf("offset should pass through, got %d", store.gotOffset)
	}
}

func TestQueryUnknown(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("what is the weather today"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if resp.Metadata.QueryType != "unknown" {
		t.Errorf("expected unknown, got %s", resp.Metadata.QueryType)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(resp.Results))
	}
	if !strings.Contains(resp.Answer, "couldn't understand") {
		t.Errorf("expected guidance answer: %q", resp.Answer)
	}
}

func TestQueryModelAnswer(t *testing.T) {
	t.Run("Model answer used when available", func(t *testing.T) {
		store := fixtureStore()
		ai := &stubAIClient{enabled: true, answer: "Avastin is preferred in oncology."}
		svc := newTestQueryService(store, nil, ai)

		resp, err := svc.Query(context.Background(), &model.QueryRequest{Query: "Is Avastin a preferred drug?"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if resp.Answer != "Avastin is preferred in oncology." {
			t.Errorf("expected model answer, got %q", resp.Answer)
		}
		if !resp.Metadata.LLMUsed {
			t.Error("metadata should report llm usage")
		}
		if ai.answerCalls != 1 {
			t.Errorf("expected 1 answer call, got %d", ai.answerCalls)
		}
	})

	t.Run("Model failure falls back to template", func(t *testing.T) {
		store := fixtureStore()
		ai := &stubAIClient{enabled: true, answerErr: context.DeadlineExceeded}
		svc := newTestQueryService(store, nil, ai)

		resp, err := svc.Query(context.Background(), &model.QueryRequest{Query: "Is Avastin a preferred drug?"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if !strings.Contains(resp.Answer, "## Avastin") {
			t.Errorf("expected fallback answer, got %q", resp.Answer)
		}
		if resp.Metadata.LLMUsed {
			t.Error("failed generation must not report llm usage")
		}
	})

	t.Run("use_llm false skips the model entirely", func(t *testing.T) {
		store := fixtureStore()
		ai := &stubAIClient{enabled: true, answer: "should not appear"}
		svc := newTestQueryService(store, nil, ai)

		resp, err := svc.Query(context.Background(), ruleOnly("Is Avastin a preferred drug?"))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if ai.calls != 0 || ai.answerCalls != 0 {
			t.Errorf("model should be untouched, got %d/%d calls", ai.calls, ai.answerCalls)
		}
		if resp.Answer == "should not appear" {
			t.Error("model answer leaked into a rule-only query")
		}
	})
}

func TestQueryStream(t *testing.T) {
	t.Run("Streams model chunks", func(t *testing.T) {
		store := fixtureStore()
		ai := &stubAIClient{enabled: true, answer: "streamed answer"}
		svc := newTestQueryService(store, nil, ai)

		var chunks []string
		resp, err := svc.QueryStream(context.Background(), &model.QueryRequest{Query: "Is Avastin a preferred drug?"}, func(content string) error {
			chunks = append(chunks, content)
			return nil
		})
		if err != nil {
			t.Fatalf("QueryStream failed: %v", err)
		}
		if resp.Answer != "streamed answer" {
			t.Errorf("expected accumulated answer, got %q", resp.Answer)
		}
		if strings.Join(chunks, "") != "streamed answer" {
			t.Errorf("chunks should reassemble the answer, got %v", chunks)
		}
	})

	t.Run("Fallback answer is still streamed", func(t *testing.T) {
		store := fixtureStore()
		svc := newTestQueryService(store, nil, nil)

		var chunks []string
		resp, err := svc.QueryStream(context.Background(), ruleOnly("Is Avastin a preferred drug?"), func(content string) error {
			chunks = append(chunks, content)
			return nil
		})
		if err != nil {
			t.Fatalf("QueryStream failed: %v", err)
		}
		if len(chunks) != 1 || chunks[0] != resp.Answer {
			t.Errorf("fallback should arrive as one chunk, got %v", chunks)
		}
	})
}

func TestQueryLogging(t *testing.T) {
	store := fixtureStore()
	logs := &stubLogStore{entries: make(chan *model.QueryLog, 1)}
	svc := newTestQueryService(store, logs, nil)

	resp, err := svc.Query(context.Background(), ruleOnly("Is Avastin a preferred drug?"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	select {
	case entry := <-logs.entries:
		if entry.ID != resp.QueryID {
			t.Errorf("log id %s should match response id %s", entry.ID, resp.QueryID)
		}
		if entry.QueryType != "drug_status" {
			t.Errorf("expected drug_status, got %s", entry.QueryType)
		}
		if entry.ResultsCount != 1 {
			t.Errorf("expected 1 result logged, got %d", entry.ResultsCount)
		}
		if len(entry.ResultNames) != 1 || entry.ResultNames[0] != "Avastin" {
			t.Errorf("expected Avastin in result names, got %v", entry.ResultNames)
		}
		if entry.Intent == nil {
			t.Error("intent snapshot should be logged")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("query log was never written")
	}
}

func TestDrugStatusLookup(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	t.Run("Found", func(t *testing.T) {
		resp, err := svc.DrugStatus(context.Background(), "avastin")
		if err != nil {
			t.Fatalf("DrugStatus failed: %v", err)
		}
		if resp.Drug == nil {
			t.Fatal("expected a drug")
		}
		if resp.Drug.DrugStatus != model.StatusPreferred {
			t.Errorf("expected preferred, got %s", resp.Drug.DrugStatus)
		}
	})

	t.Run("Not found", func(t *testing.T) {
		resp, err := svc.DrugStatus(context.Background(), "xyzzyqwv")
		if err != nil {
			t.Fatalf("DrugStatus failed: %v", err)
		}
		if resp.Drug != nil {
			t.Errorf("expected nil drug, got %+v", resp.Drug)
		}
	})
}

func TestSuggest(t *testing.T) {
	store := fixtureStore()
	svc := newTestQueryService(store, nil, nil)

	resp, err := svc.Suggest(context.Background(), "keytrooda", 70, 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(resp.Suggestions) == 0 {
		t.Fatal("expected suggestions")
	}
	if resp.Suggestions[0].Name != "Keytruda" {
		t.Errorf("expected Keytruda first, got %s", resp.Suggestions[0].Name)
	}
}
