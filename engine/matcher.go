package engine

import (
	"fmt"
	"slices"
	"strings"
)

// Matcher holds the indexed keys and answers substring queries. It is
// owned by the engine goroutine and need not be safe for concurrent use.
type Matcher interface {
	// Add indexes keys and returns the number of indexed entries.
	Add(keys []string) (int, error)
	// Remove drops every entry equal to one of keys and returns the number
	// of indexed entries left.
	Remove(keys []string) (int, error)
	Clear() error
	// Match returns the entries containing query, ignoring case.
	Match(query string) ([]string, error)
	Close() error
}

// NewMatcher creates the matcher registered under name.
func NewMatcher(name string) (Matcher, error) {
	switch name {
	case "", MatcherSubstring:
		return &substringMatcher{}, nil
	case MatcherBleve:
		return newBleveMatcher()
	default:
		return nil, fmt.Errorf("unknown matcher: %s", name)
	}
}

// substringMatcher scans a slice. Adding a key twice indexes it twice.
type substringMatcher struct {
	entries []string
}

func (m *substringMatcher) Add(keys []string) (int, error) {
	m.entries = append(m.entries, keys...)
	return len(m.entries), nil
}

func (m *substringMatcher) Remove(keys []string) (int, error) {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	m.entries = slices.DeleteFunc(m.entries, func(s string) bool {
		_, ok := drop[s]
		return ok
	})
	return len(m.entries), nil
}

func (m *substringMatcher) Clear() error {
	m.entries = nil
	return nil
}

func (m *substringMatcher) Match(query string) ([]string, error) {
	query = strings.ToLower(query)
	results := []string{}
	for _, s := range m.entries {
		if strings.Contains(strings.ToLower(s), query) {
			results = append(results, s)
		}
	}
	return results, nil
}

func (m *substringMatcher) Close() error {
	m.entries = nil
	return nil
}
