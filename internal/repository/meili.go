package repository

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/meilisearch/meilisearch-go"
)

const indexBatchSize = 1000

// NameIndex provides drug name autocomplete backed by Meilisearch. Typo
// tolerance comes from the engine defaults, so prefixes like "keytr" and
// near-misses like "avastn" both complete.
type NameIndex struct {
	client    meilisearch.ServiceManager
	indexName string
}

// NewNameIndex creates a Meilisearch-backed name index
func NewNameIndex(url, apiKey, indexName string) *NameIndex {
	client := meilisearch.New(url, meilisearch.WithAPIKey(apiKey))
	return &NameIndex{client: client, indexName: indexName}
}

// EnsureIndex creates the index and applies settings. Both calls are best
// effort so a restart against an existing index stays quiet.
func (n *NameIndex) EnsureIndex() {
	_, _ = n.client.CreateIndex(&meilisearch.IndexConfig{Uid: n.indexName, PrimaryKey: "id"})

	settings := meilisearch.Settings{
		SearchableAttributes: []string{"name"},
		SortableAttributes:   []string{"name"},
	}
	_, _ = n.client.Index(n.indexName).UpdateSettings(&settings)
}

// Rebuild drops and re-creates the index from the full list of drug names
func (n *NameIndex) Rebuild(names []string) (int, error) {
	_, _ = n.client.DeleteIndex(n.indexName)
	if _, err := n.client.CreateIndex(&meilisearch.IndexConfig{Uid: n.indexName, PrimaryKey: "id"}); err != nil {
		log.Printf("Warning: Could not create index: %v", err)
	}

	index := n.client.Index(n.indexName)

	settings := meilisearch.Settings{
		SearchableAttributes: []string{"name"},
		SortableAttributes:   []string{"name"},
	}
	_, _ = index.UpdateSettings(&settings)

	indexed := 0
	for start := 0; start < len(names); start += indexBatchSize {
		end := start + indexBatchSize
		if end > len(names) {
			end = len(names)
		}

		docs := make([]map[string]interface{}, 0, end-start)
		for i, name := range names[start:end] {
			docs = append(docs, map[string]interface{}{
				"id":   fmt.Sprintf("drug_%d", start+i),
				"name": name,
			})
		}

		if _, err := index.AddDocuments(docs, nil); err != nil {
			return indexed, fmt.Errorf("failed to index drug names: %w", err)
		}
		indexed += len(docs)
	}

	return indexed, nil
}

// Autocomplete returns up to limit drug names completing the given prefix
func (n *NameIndex) Autocomplete(prefix string, limit int) ([]string, error) {
	index := n.client.Index(n.indexName)

	res, err := index.Search(prefix, &meilisearch.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search name index: %w", err)
	}

	var hits []map[string]interface{}
	b, _ := json.Marshal(res.Hits)
	_ = json.Unmarshal(b, &hits)

	completions := make([]string, 0, len(hits))
	for _, hit := range hits {
		if name, ok := hit["name"].(string); ok && name != "" {
			completions = append(completions, name)
		}
	}
	return completions, nil
}
