// Package index is the asynchronous client of the remote index engine.
//
// Mutations (AddKeys, RemoveKeys, Clear) are fire-and-forget: the engine's
// count confirmations are reported to the observer, never awaited. Searches
// are multiplexed over the single transport channel and matched to their
// responses by correlation id, so responses may arrive in any order.
// Cancelling a search only stops the client caring about it: the waiter is
// rejected at once and a late response for the id is dropped as stale.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/searchmap/observability"
	"github.com/tailored-agentic-units/searchmap/transport"
	"github.com/tailored-agentic-units/searchmap/wire"
)

// dispatch handles every kind; this fails to compile when kinds are added.
var _ = [1]struct{}{}[wire.KindCount-12]

// Stats describes the client's bookkeeping.
type Stats struct {
	Pending    int
	Stale      int64
	Generation uint64
	State      transport.State
	Transport  transport.MetricsSnapshot
}

type Client struct {
	transport   *transport.Transport
	codec       *wire.Codec
	logger      *slog.Logger
	observer    observability.Observer
	correlation string
	timeout     time.Duration

	mu        sync.Mutex
	pending   map[string]*Pending
	destroyed bool

	// searchMu orders SEARCH against CANCEL_SEARCH. The engine applies a
	// cancel to every delayed search, so one is only sent while nothing else
	// is pending.
	searchMu sync.Mutex

	generation  atomic.Uint64
	stale       atomic.Int64
	terminated  chan struct{}
	destroyOnce sync.Once
}

// New launches the engine through launch and returns a client that queues
// requests until the engine is ready.
func New(ctx context.Context, cfg Config, tcfg transport.Config, launch transport.Launcher) (*Client, error) {
	logger := cfg.logger()
	c := &Client{
		codec:       wire.NewCodec(wire.WithLogger(logger)),
		logger:      logger,
		observer:    cfg.observer(),
		correlation: cfg.Correlation,
		timeout:     cfg.Timeout(),
		pending:     make(map[string]*Pending),
		terminated:  make(chan struct{}),
	}

	if tcfg.Logger == nil {
		tcfg.Logger = logger
	}
	tr, err := transport.New(ctx, tcfg, launch, c.dispatch)
	if err != nil {
		return nil, fmt.Errorf("failed to start index engine: %w", err)
	}
	c.transport = tr

	return c, nil
}

// WhenReady blocks until the engine has booted.
func (c *Client) WhenReady(ctx context.Context) error {
	return c.transport.WhenReady(ctx)
}

// AddKeys indexes keys. The engine's confirmation is not awaited.
func (c *Client) AddKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	c.generation.Add(1)
	return c.send(ctx, wire.KindAddStrings, &wire.StringList{Strings: keys})
}

// RemoveKeys drops keys from the index. The engine's confirmation is not
// awaited.
func (c *Client) RemoveKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	c.generation.Add(1)
	return c.send(ctx, wire.KindRemoveStrings, &wire.StringList{Strings: keys})
}

// Clear empties the index. Outstanding searches are left to settle.
func (c *Client) Clear(ctx context.Context) error {
	c.generation.Add(1)
	return c.send(ctx, wire.KindClear, wire.Empty{})
}

// Generation counts mutations sent to the engine. A result is current only
// if the generation did not move while its search was in flight.
func (c *Client) Generation() uint64 {
	return c.generation.Load()
}

// Search sends query and waits for its results. An empty result is a
// success.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	p, err := c.Begin(ctx, query)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Begin registers and sends a search without waiting for it. The returned
// handle's ID can be passed to CancelSearch.
func (c *Client) Begin(ctx context.Context, query string) (*Pending, error) {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrTerminated
	}
	p := newPending(c, c.newID(query), query)
	previous, collided := c.pending[p.id]
	c.pending[p.id] = p
	c.mu.Unlock()

	if collided && previous.settle(nil, ErrSuperseded) {
		c.logger.DebugContext(ctx, "search superseded", slog.String("search_id", p.id))
		observability.Emit(ctx, c.observer, EventSearchSuperseded, observability.LevelVerbose, source, map[string]any{
			"search_id": p.id,
		})
	}

	if err := c.send(ctx, wire.KindSearch, &wire.SearchRequest{Query: query, SearchID: p.id}); err != nil {
		c.detach(p)
		p.settle(nil, err)
		return nil, err
	}
	return p, nil
}

// CancelSearch rejects the search registered under id with ErrCancelled and
// asks the engine to stop when no other search is pending. Unknown ids are not
// an error and send nothing.
func (c *Client) CancelSearch(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrTerminated
	}
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if p.settle(nil, ErrCancelled) {
		observability.Emit(ctx, c.observer, EventSearchCancelled, observability.LevelVerbose, source, map[string]any{
			"search_id": id,
		})
	}
	c.notifyCancel(ctx, id)
	return nil
}

// Destroy closes the transport and detaches every pending search without
// settling it. It is idempotent and must not be called from an observer.
func (c *Client) Destroy() error {
	var err error
	c.destroyOnce.Do(func() {
		c.mu.Lock()
		c.destroyed = true
		detached := len(c.pending)
		c.pending = make(map[string]*Pending)
		c.mu.Unlock()

		close(c.terminated)
		err = c.transport.Close()

		c.logger.Debug("index client destroyed", slog.Int("detached", detached))
	})
	return err
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()

	return Stats{
		Pending:    pending,
		Stale:      c.stale.Load(),
		Generation: c.generation.Load(),
		State:      c.transport.State(),
		Transport:  c.transport.Metrics(),
	}
}

func (c *Client) newID(query string) string {
	if c.correlation == CorrelationQuery {
		return query
	}
	return uuid.Must(uuid.NewV7()).String()
}

func (c *Client) send(ctx context.Context, kind wire.Kind, p wire.Payload) error {
	msg, err := c.codec.Encode(kind, p)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to encode request", slog.String("kind", kind.String()), slog.String("error", err.Error()))
		observability.Emit(ctx, c.observer, EventEncodeFailed, observability.LevelError, source, map[string]any{
			"kind":  kind.String(),
			"error": err.Error(),
		})
		return err
	}

	if err := c.transport.Send(ctx, msg); err != nil {
		if errors.Is(err, transport.ErrTerminated) {
			return ErrTerminated
		}
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	return nil
}

// abandon detaches p after its waiter gave up and returns p's outcome, which
// may be a result that won the race.
func (c *Client) abandon(p *Pending, cause error, event observability.EventType) ([]string, error) {
	removed := c.detach(p)
	if p.settle(nil, cause) && removed {
		ctx := context.Background()
		c.logger.DebugContext(ctx, "search abandoned", slog.String("search_id", p.id), slog.String("cause", cause.Error()))
		observability.Emit(ctx, c.observer, event, observability.LevelVerbose, source, map[string]any{
			"search_id": p.id,
			"elapsed":   time.Since(p.created).String(),
		})
		c.notifyCancel(ctx, p.id)
	}
	return p.results, p.err
}

// detach removes p from the pending table and reports whether it was there.
func (c *Client) detach(p *Pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[p.id] != p {
		return false
	}
	delete(c.pending, p.id)
	return true
}

// notifyCancel sends CANCEL_SEARCH for id unless other searches are still
// waiting on the engine. A skipped cancel leaves the engine to answer and the
// answer is dropped as stale.
func (c *Client) notifyCancel(ctx context.Context, id string) {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	c.mu.Lock()
	others := len(c.pending)
	c.mu.Unlock()

	if others > 0 {
		c.logger.DebugContext(ctx, "cancel withheld", slog.String("search_id", id), slog.Int("pending", others))
		return
	}
	if err := c.send(context.WithoutCancel(ctx), wire.KindCancelSearch, wire.Empty{}); err != nil {
		c.logger.DebugContext(ctx, "cancel not delivered", slog.String("search_id", id), slog.String("error", err.Error()))
	}
}

// dispatch is the transport handler. It runs on one goroutine, in the order
// the engine emitted its messages.
func (c *Client) dispatch(ctx context.Context, msg []byte) {
	env, err := wire.DecodeEnvelope(msg)
	if err != nil {
		c.undecodable(ctx, wire.KindUnknown, msg, err)
		return
	}

	switch env.Kind {
	case wire.KindSearchResults:
		c.handleResults(ctx, env)
	case wire.KindSearchCancelled:
		// Bookkeeping was removed when the search was cancelled locally.
	case wire.KindStringsAdded:
		c.handleCount(ctx, env, EventStringsAdded)
	case wire.KindStringsRemoved:
		c.handleCount(ctx, env, EventStringsRemoved)
	case wire.KindError:
		var m wire.ErrorMessage
		if err := wire.DecodePayload(env, &m); err != nil {
			c.undecodable(ctx, env.Kind, env.Payload, err)
			return
		}
		c.logger.WarnContext(ctx, "engine error", slog.String("message", m.Message))
		observability.Emit(ctx, c.observer, EventEngineError, observability.LevelError, source, map[string]any{
			"message": m.Message,
		})
	case wire.KindLog:
		var m wire.LogMessage
		if err := wire.DecodePayload(env, &m); err != nil {
			c.undecodable(ctx, env.Kind, env.Payload, err)
			return
		}
		c.logger.DebugContext(ctx, "engine log", slog.String("message", m.Message))
		observability.Emit(ctx, c.observer, EventEngineLog, observability.LevelInfo, source, map[string]any{
			"message": m.Message,
		})
	default:
		c.unexpected(ctx, env.Kind)
	}
}

func (c *Client) handleResults(ctx context.Context, env wire.Envelope) {
	var res wire.SearchResults
	if err := wire.DecodePayload(env, &res); err != nil {
		c.undecodable(ctx, env.Kind, env.Payload, err)
		return
	}

	c.mu.Lock()
	p, ok := c.pending[res.SearchID]
	if ok {
		delete(c.pending, res.SearchID)
	}
	c.mu.Unlock()

	results := res.Results
	if results == nil {
		results = []string{}
	}
	if !ok || !p.settle(results, nil) {
		c.stale.Add(1)
		c.logger.DebugContext(ctx, "dropping stale search results", slog.String("search_id", res.SearchID))
		observability.Emit(ctx, c.observer, EventStaleResponse, observability.LevelVerbose, source, map[string]any{
			"search_id": res.SearchID,
			"results":   len(res.Results),
		})
	}
}

func (c *Client) handleCount(ctx context.Context, env wire.Envelope, event observability.EventType) {
	var m wire.CountResponse
	if err := wire.DecodePayload(env, &m); err != nil {
		c.undecodable(ctx, env.Kind, env.Payload, err)
		return
	}
	observability.Emit(ctx, c.observer, event, observability.LevelVerbose, source, map[string]any{
		"count": m.Count,
	})
}

// undecodable forwards bytes that failed to parse. They are never dropped
// silently.
func (c *Client) undecodable(ctx context.Context, kind wire.Kind, raw []byte, err error) {
	c.logger.WarnContext(
		ctx,
		"undecodable message from engine",
		slog.String("kind", kind.String()),
		slog.Int("len", len(raw)),
		slog.String("head", fmt.Sprintf("% x", wire.Head(raw))),
		slog.String("error", err.Error()),
	)
	observability.Emit(ctx, c.observer, EventUndecodable, observability.LevelWarning, source, map[string]any{
		"kind":  kind.String(),
		"raw":   append([]byte(nil), raw...),
		"error": err.Error(),
	})
}

// unexpected reports a kind the client never handles: one it sends itself
// echoed back, or one outside the protocol.
func (c *Client) unexpected(ctx context.Context, kind wire.Kind) {
	reason := "unknown"
	if kind.Outbound() {
		reason = "outbound"
	}
	c.logger.WarnContext(ctx, "ignoring unexpected message kind", slog.String("kind", kind.String()), slog.String("reason", reason))
	observability.Emit(ctx, c.observer, EventUnexpectedKind, observability.LevelWarning, source, map[string]any{
		"kind":   kind.String(),
		"reason": reason,
	})
}
