// Package searchmap provides Map, a key/value store whose keys can be searched
// by substring.
//
// Lookups are served synchronously from a local table. Searches are delegated
// to an index engine running on its own goroutine and reached only through
// encoded messages. Every mutation updates the table first and then, only if
// the set of keys changed, tells the engine. Search results are mapped back
// to the values currently stored, so keys removed while a search was in
// flight are dropped from its results.
package searchmap

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tailored-agentic-units/searchmap/engine"
	"github.com/tailored-agentic-units/searchmap/index"
	"github.com/tailored-agentic-units/searchmap/store"
	"github.com/tailored-agentic-units/searchmap/transport"
	"github.com/tailored-agentic-units/searchmap/wire"
)

// Entry is a key and its value.
type Entry[T any] struct {
	Key   string `json:"key"`
	Value T      `json:"value"`
}

// Stats describes a Map and the index behind it.
type Stats struct {
	Size      int
	CacheSize int
	Index     index.Stats
}

// Option configures a Map.
type Option func(*options)

type options struct {
	launcher transport.Launcher
}

// WithLauncher replaces the in-process engine with another remote.
func WithLauncher(launch transport.Launcher) Option {
	return func(o *options) { o.launcher = launch }
}

type Map[T any] struct {
	table  *store.Table[T]
	client *index.Client
	cache  *lru.Cache[string, []string]
	logger *slog.Logger

	// mu is held across each table change and the message announcing it, so
	// the engine sees mutations in table order.
	mu sync.Mutex
}

// New starts the index engine and returns an empty Map. The engine boots in
// the background; mutations and searches issued meanwhile are queued.
func New[T any](ctx context.Context, cfg Config, opts ...Option) (*Map[T], error) {
	base := DefaultConfig()
	base.Merge(&cfg)

	o := options{launcher: engine.Launcher(base.Engine)}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := index.New(ctx, base.Index, base.Transport, o.launcher)
	if err != nil {
		return nil, err
	}

	m := &Map[T]{
		table:  store.New[T](),
		client: client,
		logger: base.Logger,
	}

	if base.CacheSize > 0 {
		cache, err := lru.New[string, []string](base.CacheSize)
		if err != nil {
			client.Destroy()
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		m.cache = cache
	}

	return m, nil
}

// WhenReady blocks until the engine has booted, reporting a boot failure.
func (m *Map[T]) WhenReady(ctx context.Context) error {
	return m.client.WhenReady(ctx)
}

// Set stores value under key. Only a key not already present is sent to the
// engine. A key that is not valid UTF-8 is rejected with ErrInvalidKey and the
// map is left unchanged.
func (m *Map[T]) Set(ctx context.Context, key string, value T) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.table.Set(key, value) {
		return nil
	}
	m.purge()
	return m.announce(ctx, m.client.AddKeys(ctx, []string{key}))
}

// SetMultiple stores every entry and sends the new keys to the engine in one
// message. If any key is invalid no entry is stored.
func (m *Map[T]) SetMultiple(ctx context.Context, entries []Entry[T]) error {
	for _, e := range entries {
		if err := validateKey(e.Key); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var added []string
	for _, e := range entries {
		if m.table.Set(e.Key, e.Value) {
			added = append(added, e.Key)
		}
	}
	if len(added) == 0 {
		return nil
	}
	m.purge()
	return m.announce(ctx, m.client.AddKeys(ctx, added))
}

func (m *Map[T]) Get(key string) (T, bool) {
	return m.table.Get(key)
}

func (m *Map[T]) Has(key string) bool {
	return m.table.Has(key)
}

// Remove deletes key and reports whether it was present. Absent keys send
// nothing to the engine.
func (m *Map[T]) Remove(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.table.Delete(key) {
		return false, nil
	}
	m.purge()
	return true, m.announce(ctx, m.client.RemoveKeys(ctx, []string{key}))
}

// RemoveMultiple deletes keys and sends the ones that were present to the
// engine in one message. It returns how many were removed.
func (m *Map[T]) RemoveMultiple(ctx context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for _, k := range keys {
		if m.table.Delete(k) {
			removed = append(removed, k)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	m.purge()
	return len(removed), m.announce(ctx, m.client.RemoveKeys(ctx, removed))
}

// Clear empties the map and the index. Searches in flight are not
// cancelled.
func (m *Map[T]) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table.Clear()
	m.purge()
	return m.announce(ctx, m.client.Clear(ctx))
}

func (m *Map[T]) Size() int {
	return m.table.Len()
}

// Entries iterates key/value pairs in table order. Order is not stable
// across removals.
func (m *Map[T]) Entries() iter.Seq2[string, T] {
	return m.table.All()
}

func (m *Map[T]) Keys() iter.Seq[string] {
	return m.table.Keys()
}

func (m *Map[T]) Values() iter.Seq[T] {
	return m.table.Values()
}

// KeysFor returns the indexed keys containing query, ignoring case.
func (m *Map[T]) KeysFor(ctx context.Context, query string) ([]string, error) {
	if keys, ok := m.cached(query); ok {
		return keys, nil
	}

	generation := m.client.Generation()
	keys, err := m.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	m.remember(query, keys, generation)
	return keys, nil
}

// Search returns the values of the keys containing query. Keys removed
// since the engine answered are skipped.
func (m *Map[T]) Search(ctx context.Context, query string) ([]T, error) {
	keys, err := m.KeysFor(ctx, query)
	if err != nil {
		return nil, err
	}
	return m.resolve(keys), nil
}

// BeginSearch starts a search without waiting for it. Its ID can be passed
// to CancelSearch; Resolve maps its keys to values.
func (m *Map[T]) BeginSearch(ctx context.Context, query string) (*index.Pending, error) {
	return m.client.Begin(ctx, query)
}

// Resolve maps keys to their current values, skipping absent keys.
func (m *Map[T]) Resolve(keys []string) []T {
	return m.resolve(keys)
}

// CancelSearch abandons the search with the given id. Its caller receives
// index.ErrCancelled.
func (m *Map[T]) CancelSearch(ctx context.Context, id string) error {
	return m.client.CancelSearch(ctx, id)
}

// Destroy stops the engine. Pending searches are detached. The table keeps
// its contents and stays readable.
func (m *Map[T]) Destroy() error {
	return m.client.Destroy()
}

func (m *Map[T]) Stats() Stats {
	s := Stats{
		Size:  m.table.Len(),
		Index: m.client.Stats(),
	}
	if m.cache != nil {
		s.CacheSize = m.cache.Len()
	}
	return s
}

func validateKey(key string) error {
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidKey, key)
	}
	return nil
}

func (m *Map[T]) resolve(keys []string) []T {
	values := make([]T, 0, len(keys))
	for _, k := range keys {
		if v, ok := m.table.Get(k); ok {
			values = append(values, v)
		}
	}
	return values
}

// announce filters the error of a mutation message. Encoding failures were
// already reported by the client and leave the table change in place.
func (m *Map[T]) announce(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, wire.ErrEncode) {
		m.logger.DebugContext(ctx, "index not updated", slog.String("error", err.Error()))
		return nil
	}
	return err
}

// purge drops cached results. Callers hold mu.
func (m *Map[T]) purge() {
	if m.cache != nil {
		m.cache.Purge()
	}
}

func (m *Map[T]) cached(query string) ([]string, bool) {
	if m.cache == nil {
		return nil, false
	}
	keys, ok := m.cache.Get(query)
	if !ok {
		return nil, false
	}
	return slices.Clone(keys), true
}

// remember caches keys unless a mutation was sent while the search was in
// flight.
func (m *Map[T]) remember(query string, keys []string, generation uint64) {
	if m.cache == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client.Generation() == generation {
		m.cache.Add(query, slices.Clone(keys))
	}
}
