package searchmap_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/searchmap/engine"
	"github.com/tailored-agentic-units/searchmap/index"
	"github.com/tailored-agentic-units/searchmap/searchmap"
	"github.com/tailored-agentic-units/searchmap/transport"
	"github.com/tailored-agentic-units/searchmap/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingRemote counts what reaches the engine.
type recordingRemote struct {
	transport.Remote

	mu    sync.Mutex
	adds  map[string]int
	kinds map[wire.Kind]int
}

func (r *recordingRemote) Post(ctx context.Context, msg []byte) error {
	if env, err := wire.DecodeEnvelope(msg); err == nil {
		r.mu.Lock()
		r.kinds[env.Kind]++
		if env.Kind == wire.KindAddStrings {
			var list wire.StringList
			if wire.DecodePayload(env, &list) == nil {
				for _, k := range list.Strings {
					r.adds[k]++
				}
			}
		}
		r.mu.Unlock()
	}
	return r.Remote.Post(ctx, msg)
}

func (r *recordingRemote) addsFor(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adds[key]
}

func (r *recordingRemote) sent(kind wire.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kinds[kind]
}

func testConfig(matcher string) searchmap.Config {
	cfg := searchmap.DefaultConfig()
	cfg.Engine.Matcher = matcher
	cfg.Merge(&searchmap.Config{Logger: quiet})
	return cfg
}

func newMap(t *testing.T, cfg searchmap.Config) (*searchmap.Map[string], *recordingRemote) {
	t.Helper()

	rec := &recordingRemote{adds: make(map[string]int), kinds: make(map[wire.Kind]int)}
	launch := func(ctx context.Context) (transport.Remote, error) {
		remote, err := engine.Start(ctx, cfg.Engine)
		if err != nil {
			return nil, err
		}
		rec.Remote = remote
		return rec, nil
	}

	m, err := searchmap.New[string](context.Background(), cfg, searchmap.WithLauncher(launch))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { m.Destroy() })
	return m, rec
}

func ready(t *testing.T, m *searchmap.Map[string]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WhenReady(ctx); err != nil {
		t.Fatalf("WhenReady() error = %v", err)
	}
}

func search(t *testing.T, m *searchmap.Map[string], query string) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	values, err := m.Search(ctx, query)
	if err != nil {
		t.Fatalf("Search(%q) error = %v", query, err)
	}
	slices.Sort(values)
	return values
}

func setupProduce(t *testing.T, m *searchmap.Map[string]) {
	t.Helper()
	err := m.SetMultiple(context.Background(), []searchmap.Entry[string]{
		{Key: "apple", Value: "fruit"},
		{Key: "banana", Value: "fruit"},
		{Key: "carrot", Value: "vegetable"},
	})
	if err != nil {
		t.Fatalf("SetMultiple() error = %v", err)
	}
}

var matchers = []string{engine.MatcherSubstring, engine.MatcherBleve}

func TestMap_ScenarioA_SearchMapsKeysToValues(t *testing.T) {
	for _, matcher := range matchers {
		t.Run(matcher, func(t *testing.T) {
			m, rec := newMap(t, testConfig(matcher))
			ready(t, m)
			setupProduce(t, m)

			got := search(t, m, "a")
			if want := []string{"fruit", "fruit", "vegetable"}; !reflect.DeepEqual(got, want) {
				t.Errorf("Search(a) = %v, want %v", got, want)
			}
			if n := rec.sent(wire.KindAddStrings); n != 1 {
				t.Errorf("ADD_STRINGS sent %d times, want 1", n)
			}
		})
	}
}

func TestMap_ScenarioB_OverwriteDoesNotReAdd(t *testing.T) {
	m, rec := newMap(t, testConfig(engine.MatcherSubstring))
	ready(t, m)
	ctx := context.Background()

	if err := m.Set(ctx, "apple", "fruit"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Set(ctx, "apple", "pomme"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if n := rec.addsFor("apple"); n != 1 {
		t.Errorf("engine received %d adds for apple, want 1", n)
	}
	if got, _ := m.Get("apple"); got != "pomme" {
		t.Errorf("Get(apple) = %q, want pomme", got)
	}
	if m.Size() != 1 {
		t.Errorf("Size() = %d, want 1", m.Size())
	}
	if got := search(t, m, "app"); !reflect.DeepEqual(got, []string{"pomme"}) {
		t.Errorf("Search(app) = %v, want [pomme]", got)
	}
}

func TestMap_ScenarioC_RemoveMultiple(t *testing.T) {
	for _, matcher := range matchers {
		t.Run(matcher, func(t *testing.T) {
			m, _ := newMap(t, testConfig(matcher))
			ready(t, m)
			setupProduce(t, m)

			n, err := m.RemoveMultiple(context.Background(), []string{"apple", "carrot", "missing"})
			if err != nil {
				t.Fatalf("RemoveMultiple() error = %v", err)
			}
			if n != 2 {
				t.Errorf("RemoveMultiple() = %d, want 2", n)
			}
			if m.Has("apple") || m.Has("carrot") {
				t.Error("removed keys still present")
			}
			if got := search(t, m, "a"); !reflect.DeepEqual(got, []string{"fruit"}) {
				t.Errorf("Search(a) = %v, want [fruit]", got)
			}
		})
	}
}

func TestMap_ScenarioD_ClearThenReuse(t *testing.T) {
	for _, matcher := range matchers {
		t.Run(matcher, func(t *testing.T) {
			m, _ := newMap(t, testConfig(matcher))
			ready(t, m)
			setupProduce(t, m)
			ctx := context.Background()

			if err := m.Clear(ctx); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if got := search(t, m, "a"); len(got) != 0 {
				t.Errorf("Search(a) after Clear = %v, want empty", got)
			}

			if err := m.Set(ctx, "orange", "fruit"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if got := search(t, m, "o"); !reflect.DeepEqual(got, []string{"fruit"}) {
				t.Errorf("Search(o) = %v, want [fruit]", got)
			}
		})
	}
}

func TestMap_RemoveConsistency(t *testing.T) {
	m, rec := newMap(t, testConfig(engine.MatcherSubstring))
	ready(t, m)
	ctx := context.Background()

	if err := m.Set(ctx, "kiwi", "green"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := search(t, m, "kiw"); !reflect.DeepEqual(got, []string{"green"}) {
		t.Fatalf("Search(kiw) = %v, want [green]", got)
	}

	removed, err := m.Remove(ctx, "kiwi")
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v, want true, nil", removed, err)
	}
	if m.Has("kiwi") {
		t.Error("Has(kiwi) = true after Remove")
	}
	if got := search(t, m, "kiw"); len(got) != 0 {
		t.Errorf("Search(kiw) after Remove = %v, want empty", got)
	}

	removed, err = m.Remove(ctx, "kiwi")
	if err != nil || removed {
		t.Errorf("second Remove() = %v, %v, want false, nil", removed, err)
	}
	if n := rec.sent(wire.KindRemoveStrings); n != 1 {
		t.Errorf("REMOVE_STRINGS sent %d times, want 1", n)
	}
}

func TestMap_KeysFor(t *testing.T) {
	m, _ := newMap(t, testConfig(engine.MatcherSubstring))
	setupProduce(t, m)

	keys, err := m.KeysFor(context.Background(), "AN")
	if err != nil {
		t.Fatalf("KeysFor() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"banana"}) {
		t.Errorf("KeysFor(AN) = %v, want [banana]", keys)
	}
}

func TestMap_OperationsBeforeReadyKeepOrder(t *testing.T) {
	cfg := testConfig(engine.MatcherSubstring)
	cfg.Engine.BootDelay = "50ms"
	m, _ := newMap(t, cfg)
	ctx := context.Background()

	if err := m.Set(ctx, "apple", "fruit"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := m.Remove(ctx, "apple"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := m.Set(ctx, "avocado", "fruit"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	keys, err := m.KeysFor(ctx, "a")
	if err != nil {
		t.Fatalf("KeysFor() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"avocado"}) {
		t.Errorf("KeysFor(a) = %v, want [avocado]", keys)
	}
}

func TestMap_ResultCache(t *testing.T) {
	m, rec := newMap(t, testConfig(engine.MatcherSubstring))
	ready(t, m)
	setupProduce(t, m)
	ctx := context.Background()

	search(t, m, "an")
	search(t, m, "an")
	if n := rec.sent(wire.KindSearch); n != 1 {
		t.Errorf("SEARCH sent %d times, want 1 (second served from cache)", n)
	}
	if got := m.Stats().CacheSize; got != 1 {
		t.Errorf("CacheSize = %d, want 1", got)
	}

	if err := m.Set(ctx, "mango", "fruit"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := m.Stats().CacheSize; got != 0 {
		t.Errorf("CacheSize after mutation = %d, want 0", got)
	}
	if got := search(t, m, "an"); !reflect.DeepEqual(got, []string{"fruit", "fruit"}) {
		t.Errorf("Search(an) = %v, want [fruit fruit]", got)
	}
	if n := rec.sent(wire.KindSearch); n != 2 {
		t.Errorf("SEARCH sent %d times, want 2", n)
	}

	// Overwrites change no keys and keep the cache.
	if err := m.Set(ctx, "mango", "drupe"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := search(t, m, "an"); !reflect.DeepEqual(got, []string{"drupe", "fruit"}) {
		t.Errorf("Search(an) after overwrite = %v, want [drupe fruit]", got)
	}
	if n := rec.sent(wire.KindSearch); n != 2 {
		t.Errorf("SEARCH sent %d times, want 2", n)
	}
}

func TestMap_CacheDisabled(t *testing.T) {
	cfg := testConfig(engine.MatcherSubstring)
	cfg.CacheSize = -1
	m, rec := newMap(t, cfg)
	ready(t, m)
	setupProduce(t, m)

	search(t, m, "a")
	search(t, m, "a")
	if n := rec.sent(wire.KindSearch); n != 2 {
		t.Errorf("SEARCH sent %d times, want 2", n)
	}
}

func TestMap_CancelSearch(t *testing.T) {
	cfg := testConfig(engine.MatcherSubstring)
	cfg.Engine.SearchDelay = "100ms"
	m, _ := newMap(t, cfg)
	ready(t, m)
	setupProduce(t, m)
	ctx := context.Background()

	p, err := m.BeginSearch(ctx, "a")
	if err != nil {
		t.Fatalf("BeginSearch() error = %v", err)
	}
	if err := m.CancelSearch(ctx, p.ID()); err != nil {
		t.Fatalf("CancelSearch() error = %v", err)
	}
	if _, err := p.Wait(ctx); !errors.Is(err, index.ErrCancelled) {
		t.Errorf("Wait() error = %v, want ErrCancelled", err)
	}

	// The map keeps working after a cancellation.
	p, err = m.BeginSearch(ctx, "ban")
	if err != nil {
		t.Fatalf("BeginSearch() error = %v", err)
	}
	keys, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := m.Resolve(keys); !reflect.DeepEqual(got, []string{"fruit"}) {
		t.Errorf("Resolve() = %v, want [fruit]", got)
	}
}

func TestMap_CancelLeavesConcurrentSearchesRunning(t *testing.T) {
	for _, matcher := range matchers {
		t.Run(matcher, func(t *testing.T) {
			cfg := testConfig(matcher)
			cfg.Engine.SearchDelay = "200ms"
			cfg.Index.SearchTimeout = "1s"
			m, rec := newMap(t, cfg)
			ready(t, m)
			setupProduce(t, m)
			ctx := context.Background()

			first, err := m.BeginSearch(ctx, "a")
			if err != nil {
				t.Fatalf("BeginSearch() error = %v", err)
			}
			second, err := m.BeginSearch(ctx, "ban")
			if err != nil {
				t.Fatalf("BeginSearch() error = %v", err)
			}

			if err := m.CancelSearch(ctx, "no-such-id"); err != nil {
				t.Fatalf("CancelSearch(unknown) error = %v", err)
			}
			if err := m.CancelSearch(ctx, first.ID()); err != nil {
				t.Fatalf("CancelSearch() error = %v", err)
			}
			if _, err := first.Wait(ctx); !errors.Is(err, index.ErrCancelled) {
				t.Errorf("first Wait() error = %v, want ErrCancelled", err)
			}

			keys, err := second.Wait(ctx)
			if err != nil {
				t.Fatalf("second Wait() error = %v", err)
			}
			if got := m.Resolve(keys); !reflect.DeepEqual(got, []string{"fruit"}) {
				t.Errorf("Resolve() = %v, want [fruit]", got)
			}
			if n := rec.sent(wire.KindCancelSearch); n != 0 {
				t.Errorf("CANCEL_SEARCH sent %d times while a search was waiting, want 0", n)
			}
		})
	}
}

func TestMap_ConcurrentIdenticalSearches(t *testing.T) {
	cfg := testConfig(engine.MatcherSubstring)
	cfg.CacheSize = -1
	cfg.Engine.SearchDelay = "10ms"
	m, _ := newMap(t, cfg)
	setupProduce(t, m)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			values, err := m.Search(ctx, "carrot")
			if err == nil && !reflect.DeepEqual(values, []string{"vegetable"}) {
				err = errors.New("unexpected values")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Search(carrot) error = %v", err)
		}
	}
}

func TestMap_IterationOrder(t *testing.T) {
	m, _ := newMap(t, testConfig(engine.MatcherSubstring))
	setupProduce(t, m)

	keys := slices.Collect(m.Keys())
	if want := []string{"apple", "banana", "carrot"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}
	values := slices.Collect(m.Values())
	if want := []string{"fruit", "fruit", "vegetable"}; !reflect.DeepEqual(values, want) {
		t.Errorf("Values() = %v, want %v", values, want)
	}

	count := 0
	for range m.Entries() {
		count++
	}
	for range m.Entries() {
		count++
	}
	if count != 6 {
		t.Errorf("two passes over Entries() yielded %d, want 6", count)
	}
}

func TestMap_Destroy(t *testing.T) {
	m, _ := newMap(t, testConfig(engine.MatcherSubstring))
	ready(t, m)
	setupProduce(t, m)

	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("second Destroy() error = %v", err)
	}

	if got, ok := m.Get("apple"); !ok || got != "fruit" {
		t.Errorf("Get(apple) after Destroy = %q, %v", got, ok)
	}
	if _, err := m.Search(context.Background(), "a"); !errors.Is(err, index.ErrTerminated) {
		t.Errorf("Search() after Destroy error = %v, want ErrTerminated", err)
	}
	if got := m.Stats().Index.State; got != transport.StateTerminated {
		t.Errorf("State = %v, want %v", got, transport.StateTerminated)
	}
}

func TestMap_BootFailure(t *testing.T) {
	cfg := testConfig(engine.MatcherSubstring)
	cfg.Engine.FailBoot = true
	m, _ := newMap(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WhenReady(ctx); !errors.Is(err, transport.ErrEngineFailed) {
		t.Errorf("WhenReady() error = %v, want ErrEngineFailed", err)
	}
	if err := m.Set(ctx, "apple", "fruit"); !errors.Is(err, transport.ErrEngineFailed) {
		t.Errorf("Set() error = %v, want ErrEngineFailed", err)
	}
	if !m.Has("apple") {
		t.Error("table not updated after index failure")
	}
}

func TestMap_InvalidKeyRejected(t *testing.T) {
	m, rec := newMap(t, testConfig(engine.MatcherSubstring))
	ready(t, m)

	err := m.Set(context.Background(), "\xff", "bad")
	if !errors.Is(err, searchmap.ErrInvalidKey) {
		t.Errorf("Set() error = %v, want %v", err, searchmap.ErrInvalidKey)
	}
	if m.Has("\xff") {
		t.Error("Has() = true for rejected key")
	}
	if n := rec.sent(wire.KindAddStrings); n != 0 {
		t.Errorf("ADD_STRINGS sent %d times, want 0", n)
	}
}

func TestMap_MixedBatchWithInvalidKey(t *testing.T) {
	for _, matcher := range matchers {
		t.Run(matcher, func(t *testing.T) {
			m, rec := newMap(t, testConfig(matcher))
			ready(t, m)
			ctx := context.Background()

			err := m.SetMultiple(ctx, []searchmap.Entry[string]{
				{Key: "apple", Value: "fruit"},
				{Key: "\xff", Value: "bad"},
			})
			if !errors.Is(err, searchmap.ErrInvalidKey) {
				t.Fatalf("SetMultiple() error = %v, want %v", err, searchmap.ErrInvalidKey)
			}
			if m.Size() != 0 {
				t.Errorf("Size() = %d after rejected batch, want 0", m.Size())
			}
			if n := rec.sent(wire.KindAddStrings); n != 0 {
				t.Errorf("ADD_STRINGS sent %d times, want 0", n)
			}

			if err := m.SetMultiple(ctx, []searchmap.Entry[string]{{Key: "apple", Value: "fruit"}}); err != nil {
				t.Fatalf("SetMultiple() error = %v", err)
			}
			if got := search(t, m, "a"); !reflect.DeepEqual(got, []string{"fruit"}) {
				t.Errorf("Search(a) = %v, want [fruit]", got)
			}

			n, err := m.RemoveMultiple(ctx, []string{"apple", "\xff"})
			if err != nil || n != 1 {
				t.Fatalf("RemoveMultiple() = %d, %v, want 1, nil", n, err)
			}
			if got := search(t, m, "a"); len(got) != 0 {
				t.Errorf("Search(a) after remove = %v, want []", got)
			}
		})
	}
}
