// Package transport owns the channel between the index client and the remote
// engine.
//
// A Transport moves through four states:
//
//	Uninitialized → Initializing → Ready → Terminated
//
// While the engine boots, Send appends to an outbound queue. When the engine
// signals it has loaded, the queue is drained in FIFO order before the state
// flips to Ready, so no newly issued message can overtake a queued one. A boot
// failure returns the transport to Uninitialized without retrying; the cause
// is reported to every WhenReady caller and to later sends. Close moves any
// state to Terminated, permanently.
//
// Inbound messages are delivered to the handler given to New from a single
// goroutine, in the order the remote emitted them.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tailored-agentic-units/searchmap/observability"
)

// State is the readiness of a Transport.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Transport event types.
const (
	EventReady      observability.EventType = "transport.ready"
	EventBootFailed observability.EventType = "transport.boot.failed"
	EventPostFailed observability.EventType = "transport.post.failed"
	EventClosed     observability.EventType = "transport.closed"
)

// Remote is a separately running engine reachable only through encoded
// messages. Messages posted to a Remote are processed in post order.
type Remote interface {
	// Post delivers one encoded message.
	Post(ctx context.Context, msg []byte) error
	// Receive returns the next message emitted by the remote. It fails once
	// the remote has stopped.
	Receive(ctx context.Context) ([]byte, error)
	// Loaded is closed when booting finished, successfully or not.
	Loaded() <-chan struct{}
	// Err reports the boot failure, if any, once Loaded is closed.
	Err() error
	// Terminate stops the remote and releases its resources.
	Terminate() error
}

// Launcher starts a Remote. The remote boots asynchronously.
type Launcher func(ctx context.Context) (Remote, error)

// Handler receives each inbound message.
type Handler func(ctx context.Context, msg []byte)

type Transport struct {
	remote   Remote
	handler  Handler
	logger   *slog.Logger
	observer observability.Observer
	metrics  *Metrics

	// mu guards the fields below and serializes posts to the remote, which
	// keeps queue draining and direct sends in one total order.
	mu      sync.Mutex
	state   State
	queue   [][]byte
	bootErr error

	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New launches the remote and starts waiting for it to load. The handler is
// fixed for the lifetime of the transport.
func New(ctx context.Context, cfg Config, launch Launcher, handler Handler) (*Transport, error) {
	tctx, cancel := context.WithCancel(ctx)

	t := &Transport{
		handler:  handler,
		logger:   cfg.logger(),
		observer: cfg.observer(),
		metrics:  NewMetrics(),
		state:    StateUninitialized,
		ready:    make(chan struct{}),
		ctx:      tctx,
		cancel:   cancel,
	}

	t.state = StateInitializing
	remote, err := launch(tctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrEngineFailed, err)
	}
	t.remote = remote

	t.wg.Add(2)
	go t.awaitLoaded()
	go t.receiveLoop()

	return t, nil
}

// Send delivers msg, or queues it while the remote is still booting.
func (t *Transport) Send(ctx context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateReady:
		if err := t.remote.Post(ctx, msg); err != nil {
			return fmt.Errorf("failed to post message: %w", err)
		}
		t.metrics.RecordMessageSent(1)
		return nil
	case StateInitializing:
		t.queue = append(t.queue, msg)
		t.metrics.RecordQueued(1)
		return nil
	case StateTerminated:
		return ErrTerminated
	default:
		return fmt.Errorf("%w: %w", ErrEngineFailed, t.bootErr)
	}
}

// WhenReady blocks until the transport is Ready, the boot failed, the
// transport was closed, or ctx ends.
func (t *Transport) WhenReady(ctx context.Context) error {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateReady:
		return nil
	case StateTerminated:
		return ErrTerminated
	default:
		return fmt.Errorf("%w: %w", ErrEngineFailed, t.bootErr)
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Metrics() MetricsSnapshot {
	return t.metrics.Snapshot()
}

// Close terminates the remote and waits for the transport goroutines to
// exit. Queued messages are dropped. Close is idempotent and must not be
// called from the handler.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		previous := t.state
		t.state = StateTerminated
		dropped := t.dropQueue()
		t.mu.Unlock()

		t.cancel()
		t.signalReady()
		err = t.remote.Terminate()
		t.wg.Wait()

		t.logger.DebugContext(
			context.Background(),
			"transport closed",
			slog.String("previous_state", previous.String()),
			slog.Int("dropped", dropped),
		)
		observability.Emit(context.Background(), t.observer, EventClosed, observability.LevelVerbose, "transport.Transport", map[string]any{
			"previous_state": previous.String(),
			"dropped":        dropped,
		})
	})
	return err
}

func (t *Transport) awaitLoaded() {
	defer t.wg.Done()

	select {
	case <-t.remote.Loaded():
	case <-t.ctx.Done():
		return
	}

	if err := t.remote.Err(); err != nil {
		t.fail(err)
		return
	}

	t.mu.Lock()
	if t.state != StateInitializing {
		t.mu.Unlock()
		return
	}
	drained := 0
	for _, msg := range t.queue {
		if err := t.remote.Post(t.ctx, msg); err != nil {
			t.metrics.RecordDropped(1)
			t.logger.WarnContext(t.ctx, "failed to post queued message", slog.String("error", err.Error()))
			observability.Emit(t.ctx, t.observer, EventPostFailed, observability.LevelWarning, "transport.Transport", map[string]any{
				"error": err.Error(),
			})
			continue
		}
		drained++
	}
	t.metrics.RecordQueued(-len(t.queue))
	t.metrics.RecordDrained(drained)
	t.metrics.RecordMessageSent(drained)
	t.queue = nil
	t.state = StateReady
	t.mu.Unlock()

	t.signalReady()
	t.logger.DebugContext(t.ctx, "transport ready", slog.Int("drained", drained))
	observability.Emit(t.ctx, t.observer, EventReady, observability.LevelVerbose, "transport.Transport", map[string]any{
		"drained": drained,
	})
}

func (t *Transport) fail(cause error) {
	t.mu.Lock()
	if t.state == StateTerminated {
		t.mu.Unlock()
		return
	}
	t.state = StateUninitialized
	t.bootErr = cause
	dropped := t.dropQueue()
	t.mu.Unlock()

	t.signalReady()
	t.logger.ErrorContext(
		t.ctx,
		"engine failed to initialize",
		slog.String("error", cause.Error()),
		slog.Int("dropped", dropped),
	)
	observability.Emit(t.ctx, t.observer, EventBootFailed, observability.LevelError, "transport.Transport", map[string]any{
		"error":   cause.Error(),
		"dropped": dropped,
	})
}

func (t *Transport) receiveLoop() {
	defer t.wg.Done()

	for {
		msg, err := t.remote.Receive(t.ctx)
		if err != nil {
			return
		}
		t.metrics.RecordMessageRecv(1)
		t.handler(t.ctx, msg)
	}
}

// dropQueue discards queued messages. Callers hold mu.
func (t *Transport) dropQueue() int {
	n := len(t.queue)
	t.queue = nil
	t.metrics.RecordQueued(-n)
	t.metrics.RecordDropped(n)
	return n
}

func (t *Transport) signalReady() {
	t.readyOnce.Do(func() { close(t.ready) })
}
