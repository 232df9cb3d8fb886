package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

const keyField = "key"

// keyDocument is indexed under the key itself, so the index holds each key
// at most once.
type keyDocument struct {
	Key string `json:"key"`
}

// bleveMatcher keeps keys in an in-memory bleve index. The key field is
// stored lowercased and unanalyzed, and queries become regexps over it.
type bleveMatcher struct {
	index bleve.Index
}

func newBleveMatcher() (*bleveMatcher, error) {
	idx, err := bleve.NewMemOnly(keyMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &bleveMatcher{index: idx}, nil
}

func keyMapping() *mapping.IndexMappingImpl {
	field := bleve.NewTextFieldMapping()
	field.Analyzer = keyword.Name
	field.Store = false
	field.IncludeTermVectors = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(keyField, field)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func (m *bleveMatcher) Add(keys []string) (int, error) {
	batch := m.index.NewBatch()
	for _, k := range keys {
		if err := batch.Index(k, keyDocument{Key: strings.ToLower(k)}); err != nil {
			return 0, fmt.Errorf("failed to index key %q: %w", k, err)
		}
	}
	if err := m.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to execute batch: %w", err)
	}
	return m.count()
}

func (m *bleveMatcher) Remove(keys []string) (int, error) {
	batch := m.index.NewBatch()
	for _, k := range keys {
		batch.Delete(k)
	}
	if err := m.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}
	return m.count()
}

// Clear swaps in a fresh index; bleve has no truncate.
func (m *bleveMatcher) Clear() error {
	idx, err := bleve.NewMemOnly(keyMapping())
	if err != nil {
		return fmt.Errorf("failed to create bleve index: %w", err)
	}
	old := m.index
	m.index = idx
	return old.Close()
}

func (m *bleveMatcher) Match(query string) ([]string, error) {
	total, err := m.count()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []string{}, nil
	}

	q := bleve.NewRegexpQuery(".*" + regexp.QuoteMeta(strings.ToLower(query)) + ".*")
	q.SetField(keyField)

	req := bleve.NewSearchRequest(q)
	req.Size = total
	req.SortBy([]string{"_id"})

	res, err := m.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, hit.ID)
	}
	return results, nil
}

func (m *bleveMatcher) Close() error {
	return m.index.Close()
}

func (m *bleveMatcher) count() (int, error) {
	n, err := m.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}
